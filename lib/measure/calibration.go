// Package measure holds the camera-independent half of the range finder:
// calibration, the HSV threshold window and the pinhole distance/angle math
// applied to a fitted bounding box.
package measure

import "math"

// Calibration ties the target's physical size to the camera's apparent size.
// It is a value type; recalibrating means building a new one.
type Calibration struct {
	KnownWidth  float64 `json:"known_width"`
	KnownHeight float64 `json:"known_height"`
	FocalLength float64 `json:"focal_length"`
}

// NewCalibration derives the focal length from a reference observation:
// a target of knownHeight units measured referencePixelHeight pixels tall at
// referenceDistance units from the camera.
//
// knownHeight must be non-zero. Signs are not checked.
func NewCalibration(referencePixelHeight, referenceDistance, knownWidth, knownHeight float64) (Calibration, error) {
	for _, v := range []float64{referencePixelHeight, referenceDistance, knownWidth, knownHeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Calibration{}, &DegenerateCalibrationError{
				ReferencePixelHeight: referencePixelHeight,
				ReferenceDistance:    referenceDistance,
				KnownWidth:           knownWidth,
				KnownHeight:          knownHeight,
				Reason:               "inputs must be finite",
			}
		}
	}
	if knownHeight == 0 {
		return Calibration{}, &DegenerateCalibrationError{
			ReferencePixelHeight: referencePixelHeight,
			ReferenceDistance:    referenceDistance,
			KnownWidth:           knownWidth,
			KnownHeight:          knownHeight,
			Reason:               "known height must be non-zero",
		}
	}

	focal := (referencePixelHeight * referenceDistance) / knownHeight
	if math.IsInf(focal, 0) || math.IsNaN(focal) {
		return Calibration{}, &DegenerateCalibrationError{
			ReferencePixelHeight: referencePixelHeight,
			ReferenceDistance:    referenceDistance,
			KnownWidth:           knownWidth,
			KnownHeight:          knownHeight,
			Reason:               "focal length overflows",
		}
	}

	return Calibration{
		KnownWidth:  knownWidth,
		KnownHeight: knownHeight,
		FocalLength: focal,
	}, nil
}

// DimensionsOnly builds the fallback calibration used when only the
// target's physical size is known: pixel height and distance both 1.
func DimensionsOnly(knownWidth, knownHeight float64) (Calibration, error) {
	return NewCalibration(1, 1, knownWidth, knownHeight)
}

// Ratio is the target's width-to-height aspect ratio.
func (c Calibration) Ratio() float64 {
	return c.KnownWidth / c.KnownHeight
}

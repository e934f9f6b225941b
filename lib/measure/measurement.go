package measure

import (
	"image"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// Measurement is the fitted box of one frame together with the calibration it
// was taken under. The zero box means no target was found.
type Measurement struct {
	Calibration  Calibration `json:"calibration"`
	FittedHeight float64     `json:"fitted_height"`
	FittedWidth  float64     `json:"fitted_width"`
}

// NewMeasurement measures a rotated rectangle given as four corners in
// min-area-rect order (corner 0 adjacent to 1, 1 adjacent to 2). Height is the
// 0-1 edge and width the 1-2 edge before swap correction.
func NewMeasurement(cal Calibration, corners [4]image.Point) Measurement {
	height := cornerDistance(corners[0], corners[1])
	width := cornerDistance(corners[2], corners[1])
	height, width = CorrectSwap(cal, height, width)
	return Measurement{
		Calibration:  cal,
		FittedHeight: height,
		FittedWidth:  width,
	}
}

// Absent is the measurement of a frame with no target.
func Absent(cal Calibration) Measurement {
	return Measurement{Calibration: cal}
}

// CorrectSwap pairs the longer measured side with the longer known side.
// Corner order from the rectangle fit depends on its rotation, so the raw
// height/width labels can be the wrong way round. Assumes the target is
// within 45 degrees of its expected orientation.
func CorrectSwap(cal Calibration, height, width float64) (float64, float64) {
	if cal.KnownHeight > cal.KnownWidth && width > height {
		return width, height
	} else if cal.KnownWidth > cal.KnownHeight && height > width {
		return width, height
	}
	return height, width
}

// Found reports whether the frame had a target.
func (m Measurement) Found() bool {
	return m.FittedHeight > 0
}

// FittedBox returns (height, width) in pixels.
func (m Measurement) FittedBox() (float64, float64) {
	return m.FittedHeight, m.FittedWidth
}

// Distance to the target in calibration units, rounded half to even at two
// decimals. Zero when there is no target.
func (m Measurement) Distance() float64 {
	if m.FittedHeight > 0 {
		return scalar.RoundEven((m.Calibration.KnownHeight*m.Calibration.FocalLength)/m.FittedHeight, 2)
	}
	return 0
}

// ExpectedWidth is the width the target would measure at its current
// apparent height if it faced the camera squarely.
func (m Measurement) ExpectedWidth() float64 {
	return m.FittedHeight * m.Calibration.Ratio()
}

// Angle estimates how far the target is turned away from the camera, in
// degrees. The mapping is linear in the width shortfall: 0 when square-on,
// 90 when the width has vanished.
func (m Measurement) Angle() float64 {
	expected := m.ExpectedWidth()
	if m.Calibration.KnownWidth != 0 && expected > m.FittedWidth {
		return (1 - (m.FittedWidth / expected)) * 90
	}
	return 0
}

func cornerDistance(a, b image.Point) float64 {
	return r2.Norm(r2.Sub(toVec(b), toVec(a)))
}

func toVec(p image.Point) r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

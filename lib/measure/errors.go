package measure

import "fmt"

// InvalidFrameError is returned when a frame cannot be processed at all
// (empty buffer, the wrong pixel layout, or OpenCV refusing to convert or
// threshold it). The caller should drop the frame and try again with the
// next one.
type InvalidFrameError struct {
	Rows     int
	Cols     int
	Channels int
	Reason   string
	Err      error // underlying OpenCV error, if any
}

func (e *InvalidFrameError) Error() string {
	msg := fmt.Sprintf("invalid frame %dx%d (%d channels): %s", e.Cols, e.Rows, e.Channels, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidFrameError) Unwrap() error {
	return e.Err
}

// DegenerateCalibrationError is returned when calibration inputs would
// produce a non-finite focal length or ratio.
type DegenerateCalibrationError struct {
	ReferencePixelHeight float64
	ReferenceDistance    float64
	KnownWidth           float64
	KnownHeight          float64
	Reason               string
}

func (e *DegenerateCalibrationError) Error() string {
	return fmt.Sprintf("degenerate calibration (pixel height %g, distance %g, width %g, height %g): %s",
		e.ReferencePixelHeight, e.ReferenceDistance, e.KnownWidth, e.KnownHeight, e.Reason)
}

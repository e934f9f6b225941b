package web

import (
	"strconv"
	"strings"

	"rangefinder/lib/measure"
)

// CalibrationForm is the text the operator typed into the calibration boxes.
// Values stay strings so half-typed input can be told apart from numbers.
type CalibrationForm struct {
	KnownWidth    string `json:"known_width" form:"known_width"`
	KnownHeight   string `json:"known_height" form:"known_height"`
	KnownDistance string `json:"known_distance" form:"known_distance"`
	PixelHeight   string `json:"pixel_height" form:"pixel_height"`
}

// IsNumeric reports whether s is a run of ASCII digits with at most one dot
// anywhere in it. Signs, exponents and surrounding space are rejected.
func IsNumeric(s string) bool {
	digits := strings.Replace(s, ".", "", 1)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseCalibration turns the form into a calibration. All four fields
// numeric gives a full calibration; only width and height numeric gives the
// dimensions-only fallback. Anything else returns current with applied false.
func ParseCalibration(form CalibrationForm, current measure.Calibration) (cal measure.Calibration, applied bool, err error) {
	switch {
	case IsNumeric(form.PixelHeight) && IsNumeric(form.KnownDistance) &&
		IsNumeric(form.KnownWidth) && IsNumeric(form.KnownHeight):
		cal, err = measure.NewCalibration(
			parseNumeric(form.PixelHeight),
			parseNumeric(form.KnownDistance),
			parseNumeric(form.KnownWidth),
			parseNumeric(form.KnownHeight),
		)
	case IsNumeric(form.KnownWidth) && IsNumeric(form.KnownHeight):
		cal, err = measure.DimensionsOnly(parseNumeric(form.KnownWidth), parseNumeric(form.KnownHeight))
	default:
		return current, false, nil
	}
	if err != nil {
		return current, false, err
	}
	return cal, true, nil
}

// parseNumeric parses a string already accepted by IsNumeric. Out of range
// input comes back as ±Inf, which NewCalibration rejects.
func parseNumeric(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

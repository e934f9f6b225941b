package measure

import (
	"image"
	"time"
)

// View selects which annotated frame is shown to the operator.
type View string

const (
	ViewMask  View = "mask"
	ViewImage View = "image"
)

// ParseView accepts "mask" or "image" (alias "img").
func ParseView(s string) (View, bool) {
	switch s {
	case "mask":
		return ViewMask, true
	case "image", "img":
		return ViewImage, true
	}
	return "", false
}

// Snapshot is what the rest of the application sees of one processed frame.
type Snapshot struct {
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	Found        bool            `json:"found"`
	Distance     float64         `json:"distance"`
	Angle        float64         `json:"angle"`
	FocalLength  float64         `json:"focal_length"`
	FittedHeight float64         `json:"fitted_height"`
	FittedWidth  float64         `json:"fitted_width"`
	BoundingBox  image.Rectangle `json:"bounding_box"`
	Bounds       HSVBounds       `json:"bounds"`
	Calibration  Calibration     `json:"calibration"`
}

// NewSnapshot projects a measurement into a Snapshot.
func NewSnapshot(seq uint64, ts time.Time, m Measurement, box image.Rectangle, bounds HSVBounds) Snapshot {
	return Snapshot{
		Sequence:     seq,
		Timestamp:    ts,
		Found:        m.Found(),
		Distance:     m.Distance(),
		Angle:        m.Angle(),
		FocalLength:  m.Calibration.FocalLength,
		FittedHeight: m.FittedHeight,
		FittedWidth:  m.FittedWidth,
		BoundingBox:  box,
		Bounds:       bounds,
		Calibration:  m.Calibration,
	}
}

package lib

import (
	"gocv.io/x/gocv"

	"rangefinder/lib/measure"
)

// BoundsTrackbars are the six HSV sliders of the desktop tuner, laid out in
// the same order as the web panel.
type BoundsTrackbars struct {
	highH, lowH *gocv.Trackbar
	highV, lowV *gocv.Trackbar
	highS, lowS *gocv.Trackbar
}

// NewBoundsTrackbars adds the sliders to w, positioned at initial.
func NewBoundsTrackbars(w *gocv.Window, initial measure.HSVBounds) *BoundsTrackbars {
	t := &BoundsTrackbars{
		highH: w.CreateTrackbar("high_H", measure.MaxHue),
		lowH:  w.CreateTrackbar("low_H", measure.MaxHue),
		highV: w.CreateTrackbar("high_V", measure.MaxValue),
		lowV:  w.CreateTrackbar("low_V", measure.MaxValue),
		highS: w.CreateTrackbar("high_S", measure.MaxValue),
		lowS:  w.CreateTrackbar("low_S", measure.MaxValue),
	}
	t.SetBounds(initial)
	return t
}

// SetBounds moves the sliders.
func (t *BoundsTrackbars) SetBounds(b measure.HSVBounds) {
	t.highH.SetPos(int(b.HighH))
	t.lowH.SetPos(int(b.LowH))
	t.highV.SetPos(int(b.HighV))
	t.lowV.SetPos(int(b.LowV))
	t.highS.SetPos(int(b.HighS))
	t.lowS.SetPos(int(b.LowS))
}

// Bounds reads the sliders. The result is normalized, and a low slider
// dragged past its high slider is snapped back.
func (t *BoundsTrackbars) Bounds() measure.HSVBounds {
	raw := measure.HSVBounds{
		LowH:  float64(t.lowH.GetPos()),
		LowS:  float64(t.lowS.GetPos()),
		LowV:  float64(t.lowV.GetPos()),
		HighH: float64(t.highH.GetPos()),
		HighS: float64(t.highS.GetPos()),
		HighV: float64(t.highV.GetPos()),
	}
	b := raw.Normalize()
	if b != raw {
		t.SetBounds(b)
	}
	return b
}

package measure

// Upper limits used by the tuning controls. Hue uses the 0-360 range the
// operator sees; bounds are handed to OpenCV unchanged.
const (
	MaxHue   = 360
	MaxValue = 255
)

// HSVBounds is the inclusive HSV threshold window for one frame.
type HSVBounds struct {
	LowH  float64 `json:"low_h"`
	LowS  float64 `json:"low_s"`
	LowV  float64 `json:"low_v"`
	HighH float64 `json:"high_h"`
	HighS float64 `json:"high_s"`
	HighV float64 `json:"high_v"`
}

// DefaultHSVBounds returns the starting slider positions of the tuning UI.
func DefaultHSVBounds() HSVBounds {
	return HSVBounds{
		LowH:  300,
		LowS:  70,
		LowV:  120,
		HighH: 359,
		HighS: MaxValue,
		HighV: MaxValue,
	}
}

// Normalize clamps each channel so that low never exceeds high. A channel
// with low > high collapses to the single value high.
func (b HSVBounds) Normalize() HSVBounds {
	if b.LowH > b.HighH {
		b.LowH = b.HighH
	}
	if b.LowS > b.HighS {
		b.LowS = b.HighS
	}
	if b.LowV > b.HighV {
		b.LowV = b.HighV
	}
	return b
}

// Lower returns the (H, S, V) lower bound.
func (b HSVBounds) Lower() [3]float64 {
	return [3]float64{b.LowH, b.LowS, b.LowV}
}

// Upper returns the (H, S, V) upper bound.
func (b HSVBounds) Upper() [3]float64 {
	return [3]float64{b.HighH, b.HighS, b.HighV}
}

// Contains reports whether an HSV triple falls inside the window on every
// channel. It does not normalize first.
func (b HSVBounds) Contains(h, s, v float64) bool {
	return h >= b.LowH && h <= b.HighH &&
		s >= b.LowS && s <= b.HighS &&
		v >= b.LowV && v <= b.HighV
}

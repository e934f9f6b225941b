package measure

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCalibration(t *testing.T, pixelHeight, distance, width, height float64) Calibration {
	t.Helper()
	cal, err := NewCalibration(pixelHeight, distance, width, height)
	require.NoError(t, err)
	return cal
}

func TestNewCalibration_FocalLength(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 4, 4)
	assert.Equal(t, 600.0, cal.FocalLength)
	assert.Equal(t, 4.0, cal.KnownWidth)
	assert.Equal(t, 4.0, cal.KnownHeight)
}

func TestNewCalibration_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		args [4]float64
	}{
		{name: "zero known height", args: [4]float64{100, 24, 4, 0}},
		{name: "NaN pixel height", args: [4]float64{math.NaN(), 24, 4, 4}},
		{name: "infinite distance", args: [4]float64{100, math.Inf(1), 4, 4}},
		{name: "focal overflow", args: [4]float64{math.MaxFloat64, math.MaxFloat64, 4, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalibration(tt.args[0], tt.args[1], tt.args[2], tt.args[3])
			require.Error(t, err)

			var degenerate *DegenerateCalibrationError
			assert.True(t, errors.As(err, &degenerate))
		})
	}
}

func TestNewCalibration_NegativeAccepted(t *testing.T) {
	cal, err := NewCalibration(100, 24, 4, -4)
	require.NoError(t, err)
	assert.Equal(t, -600.0, cal.FocalLength)
}

func TestDimensionsOnly(t *testing.T) {
	cal, err := DimensionsOnly(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cal.FocalLength)
	assert.Equal(t, 2.0, cal.KnownWidth)
	assert.Equal(t, 5.0, cal.KnownHeight)
}

func TestCalibrationIndependence(t *testing.T) {
	a := mustCalibration(t, 120, 36, 5, 11)
	b := mustCalibration(t, 120, 36, 5, 11)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("calibrations differ (-a +b):\n%s", diff)
	}

	corners := [4]image.Point{{10, 80}, {10, 10}, {40, 10}, {40, 80}}
	ma := NewMeasurement(a, corners)
	mb := NewMeasurement(b, corners)
	assert.Equal(t, ma.Distance(), mb.Distance())
	assert.Equal(t, ma.Angle(), mb.Angle())
}

func TestHSVBounds_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   HSVBounds
		want HSVBounds
	}{
		{
			name: "already ordered",
			in:   HSVBounds{LowH: 10, LowS: 20, LowV: 30, HighH: 40, HighS: 50, HighV: 60},
			want: HSVBounds{LowH: 10, LowS: 20, LowV: 30, HighH: 40, HighS: 50, HighV: 60},
		},
		{
			name: "hue inverted",
			in:   HSVBounds{LowH: 300, LowS: 0, LowV: 0, HighH: 200, HighS: 255, HighV: 255},
			want: HSVBounds{LowH: 200, LowS: 0, LowV: 0, HighH: 200, HighS: 255, HighV: 255},
		},
		{
			name: "all inverted",
			in:   HSVBounds{LowH: 90, LowS: 200, LowV: 250, HighH: 10, HighS: 100, HighV: 5},
			want: HSVBounds{LowH: 10, LowS: 100, LowV: 5, HighH: 10, HighS: 100, HighV: 5},
		},
		{
			name: "equal bounds",
			in:   HSVBounds{LowH: 60, LowS: 60, LowV: 60, HighH: 60, HighS: 60, HighV: 60},
			want: HSVBounds{LowH: 60, LowS: 60, LowV: 60, HighH: 60, HighS: 60, HighV: 60},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := tt.in.Normalize()
			if diff := cmp.Diff(tt.want, once); diff != "" {
				t.Fatalf("Normalize mismatch (-want +got):\n%s", diff)
			}

			// Idempotent
			assert.Equal(t, once, once.Normalize())

			lower, upper := once.Lower(), once.Upper()
			for i := range lower {
				assert.LessOrEqual(t, lower[i], upper[i], "channel %d", i)
			}
		})
	}
}

func TestHSVBounds_NormalizeSweep(t *testing.T) {
	values := []float64{0, 1, 59.5, 128, 255, 360}
	for _, lo := range values {
		for _, hi := range values {
			b := HSVBounds{LowH: lo, LowS: lo, LowV: lo, HighH: hi, HighS: hi, HighV: hi}.Normalize()
			assert.LessOrEqual(t, b.LowH, b.HighH)
			assert.LessOrEqual(t, b.LowS, b.HighS)
			assert.LessOrEqual(t, b.LowV, b.HighV)
			assert.Equal(t, b, b.Normalize())
		}
	}
}

func TestHSVBounds_Contains(t *testing.T) {
	b := HSVBounds{LowH: 50, LowS: 100, LowV: 100, HighH: 70, HighS: 255, HighV: 255}
	assert.True(t, b.Contains(60, 255, 255))
	assert.True(t, b.Contains(50, 100, 100))
	assert.False(t, b.Contains(60, 255, 0))
	assert.False(t, b.Contains(71, 200, 200))
}

func TestCorrectSwap(t *testing.T) {
	tall := Calibration{KnownWidth: 2, KnownHeight: 10, FocalLength: 1}
	wide := Calibration{KnownWidth: 10, KnownHeight: 2, FocalLength: 1}
	square := Calibration{KnownWidth: 4, KnownHeight: 4, FocalLength: 1}

	tests := []struct {
		name         string
		cal          Calibration
		h, w         float64
		wantH, wantW float64
	}{
		{name: "tall target, inverted box", cal: tall, h: 2, w: 10, wantH: 10, wantW: 2},
		{name: "tall target, correct box", cal: tall, h: 10, w: 2, wantH: 10, wantW: 2},
		{name: "wide target, inverted box", cal: wide, h: 10, w: 2, wantH: 2, wantW: 10},
		{name: "wide target, correct box", cal: wide, h: 2, w: 10, wantH: 2, wantW: 10},
		{name: "square target never swaps", cal: square, h: 3, w: 9, wantH: 3, wantW: 9},
		{name: "equal sides", cal: tall, h: 5, w: 5, wantH: 5, wantW: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, w := CorrectSwap(tt.cal, tt.h, tt.w)
			assert.Equal(t, tt.wantH, h)
			assert.Equal(t, tt.wantW, w)
		})
	}
}

func TestNewMeasurement_SwapCorrection(t *testing.T) {
	cal := mustCalibration(t, 1, 1, 2, 10)

	// 0-1 edge is 2 long, 1-2 edge is 10 long: raw labelling is inverted.
	corners := [4]image.Point{{0, 2}, {0, 0}, {10, 0}, {10, 2}}
	m := NewMeasurement(cal, corners)

	assert.Greater(t, m.FittedHeight, m.FittedWidth)
	assert.Equal(t, 10.0, m.FittedHeight)
	assert.Equal(t, 2.0, m.FittedWidth)
}

func TestNewMeasurement_DiagonalCorners(t *testing.T) {
	cal := mustCalibration(t, 1, 1, 4, 4)
	corners := [4]image.Point{{0, 3}, {4, 0}, {7, 4}, {3, 7}}
	m := NewMeasurement(cal, corners)

	assert.InDelta(t, 5.0, m.FittedHeight, 1e-9)
	assert.InDelta(t, 5.0, m.FittedWidth, 1e-9)
}

func TestMeasurement_Distance(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 4, 4)

	tests := []struct {
		name   string
		height float64
		want   float64
	}{
		{name: "reference size", height: 100, want: 24},
		{name: "half size", height: 50, want: 48},
		{name: "rounded to two places", height: 70, want: 34.29},
		{name: "no target", height: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measurement{Calibration: cal, FittedHeight: tt.height, FittedWidth: tt.height}
			assert.Equal(t, tt.want, m.Distance())
		})
	}
}

func TestMeasurement_DistanceRoundsHalfToEven(t *testing.T) {
	cal, err := DimensionsOnly(1, 1)
	require.NoError(t, err)

	tests := []struct {
		height float64
		want   float64
	}{
		{height: 8, want: 0.12},  // 0.125
		{height: 16, want: 0.06}, // 0.0625
		{height: 3, want: 0.33},
	}

	for _, tt := range tests {
		m := Measurement{Calibration: cal, FittedHeight: tt.height}
		assert.Equal(t, tt.want, m.Distance(), "height %g", tt.height)
	}
}

func TestMeasurement_DistanceMonotonic(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 4, 4)

	prev := math.Inf(1)
	for h := 1.0; h <= 400; h++ {
		d := Measurement{Calibration: cal, FittedHeight: h}.Distance()
		assert.Less(t, d, prev, "height %v", h)
		prev = d
	}
}

func TestMeasurement_Angle(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 4, 8)

	tests := []struct {
		name          string
		height, width float64
		want          float64
	}{
		{name: "square on", height: 80, width: 40, want: 0},
		{name: "wider than expected", height: 80, width: 60, want: 0},
		{name: "half width", height: 80, width: 20, want: 45},
		{name: "fully foreshortened", height: 80, width: 0, want: 90},
		{name: "no target", height: 0, width: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measurement{Calibration: cal, FittedHeight: tt.height, FittedWidth: tt.width}
			assert.InDelta(t, tt.want, m.Angle(), 1e-9)
		})
	}
}

func TestMeasurement_AngleZeroKnownWidth(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 0, 8)
	m := Measurement{Calibration: cal, FittedHeight: 80, FittedWidth: 0}
	assert.Equal(t, 0.0, m.Angle())
}

func TestMeasurement_AngleBounds(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 3, 7)
	for h := 0.0; h <= 200; h += 7 {
		for w := 0.0; w <= 200; w += 5 {
			a := Measurement{Calibration: cal, FittedHeight: h, FittedWidth: w}.Angle()
			assert.GreaterOrEqual(t, a, 0.0)
			assert.LessOrEqual(t, a, 90.0)
		}
	}
}

func TestAbsent(t *testing.T) {
	cal := mustCalibration(t, 100, 24, 4, 4)
	m := Absent(cal)

	h, w := m.FittedBox()
	assert.Zero(t, h)
	assert.Zero(t, w)
	assert.False(t, m.Found())
	assert.Zero(t, m.Distance())
	assert.Zero(t, m.Angle())
}

func TestInvalidFrameError_Message(t *testing.T) {
	err := &InvalidFrameError{Rows: 480, Cols: 640, Channels: 1, Reason: "expected 3 channels"}
	assert.Equal(t, "invalid frame 640x480 (1 channels): expected 3 channels", err.Error())
}

func TestInvalidFrameError_Unwrap(t *testing.T) {
	cause := errors.New("cv::cvtColor: bad depth")
	var err error = &InvalidFrameError{Rows: 2, Cols: 3, Channels: 3, Reason: "hsv conversion", Err: cause}

	assert.Equal(t, "invalid frame 3x2 (3 channels): hsv conversion: cv::cvtColor: bad depth", err.Error())
	assert.ErrorIs(t, err, cause)

	var invalid *InvalidFrameError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "hsv conversion", invalid.Reason)
}

package lib

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"rangefinder/lib/measure"
)

const (
	morphKernelSize = 3  // Erode/dilate structuring element, in pixels
	morphIterations = 2  // Erosions, then the same number of dilations
	binaryThreshold = 30 // Mask values above this count as foreground
	overlayStroke   = 2
)

var (
	overlayGreen = color.RGBA{0, 255, 0, 255}
	overlayRed   = color.RGBA{255, 0, 0, 255}
)

// Result is the output of one TargetTracker.Update call. Mask and Annotated
// are owned by the caller and must be released with Close.
type Result struct {
	Mask        gocv.Mat // cleaned threshold mask, widened to BGR, with overlay
	Annotated   gocv.Mat // BGRA copy of the frame with overlays
	Measurement measure.Measurement
	Found       bool
	BoundingBox image.Rectangle // axis-aligned, zero when nothing was found
	Corners     [4]image.Point  // min-area rectangle, OpenCV corner order
}

// Close releases both output images.
func (r *Result) Close() {
	r.Mask.Close()
	r.Annotated.Close()
}

// TargetTracker finds the largest blob inside an HSV window and measures it
// against a fixed calibration. It keeps only the last frame's measurement and
// is not safe for concurrent use; give each frame stream its own tracker.
type TargetTracker struct {
	calibration measure.Calibration
	last        measure.Measurement
}

// NewTargetTracker calibrates a tracker from a reference observation and the
// target's physical size. knownHeight must be non-zero.
func NewTargetTracker(referencePixelHeight, referenceDistance, knownWidth, knownHeight float64) (*TargetTracker, error) {
	cal, err := measure.NewCalibration(referencePixelHeight, referenceDistance, knownWidth, knownHeight)
	if err != nil {
		return nil, err
	}
	return NewTargetTrackerWithCalibration(cal), nil
}

// NewTargetTrackerWithCalibration builds a tracker around an existing calibration.
func NewTargetTrackerWithCalibration(cal measure.Calibration) *TargetTracker {
	return &TargetTracker{
		calibration: cal,
		last:        measure.Absent(cal),
	}
}

// Update segments one BGR frame and measures the largest target in it.
//
// The frame must be a non-empty 8-bit 3-channel image; anything else, or an
// OpenCV failure converting or thresholding it, returns
// *measure.InvalidFrameError. Finding nothing is not an error: the result has
// a zero measurement and a zero bounding box. Bounds with low > high on a
// channel are clamped rather than rejected.
func (t *TargetTracker) Update(frame gocv.Mat, bounds measure.HSVBounds) (Result, error) {
	if err := checkFrame(frame); err != nil {
		return Result{}, err
	}

	hsvImg := gocv.NewMat()
	defer hsvImg.Close()
	if err := gocv.CvtColor(frame, &hsvImg, gocv.ColorBGRToHSV); err != nil {
		return Result{}, frameError(frame, "hsv conversion", err)
	}

	bounds = bounds.Normalize()
	lower, upper := bounds.Lower(), bounds.Upper()

	mask := gocv.NewMat()
	defer mask.Close()
	err := gocv.InRangeWithScalar(hsvImg,
		gocv.NewScalar(lower[0], lower[1], lower[2], 0),
		gocv.NewScalar(upper[0], upper[1], upper[2], 0),
		&mask)
	if err != nil {
		return Result{}, frameError(frame, "hsv threshold", err)
	}

	// Remove speckle, then grow the survivors back
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(morphKernelSize, morphKernelSize))
	defer kernel.Close()
	for i := 0; i < morphIterations; i++ {
		if err := gocv.Erode(mask, &mask, kernel); err != nil {
			return Result{}, fmt.Errorf("erode: %w", err)
		}
	}
	for i := 0; i < morphIterations; i++ {
		if err := gocv.Dilate(mask, &mask, kernel); err != nil {
			return Result{}, fmt.Errorf("dilate: %w", err)
		}
	}

	threshed := gocv.NewMat()
	defer threshed.Close()
	gocv.Threshold(mask, &threshed, binaryThreshold, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(threshed, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	result := Result{Measurement: measure.Absent(t.calibration)}
	if idx := largestContour(contours); idx >= 0 {
		target := contours.At(idx)
		result.Found = true
		result.BoundingBox = gocv.BoundingRect(target)

		rotated := gocv.MinAreaRect(target)
		copy(result.Corners[:], rotated.Points)
		result.Measurement = measure.NewMeasurement(t.calibration, result.Corners)
	}

	annotated, coloredMask, err := drawOverlays(frame, mask, result)
	if err != nil {
		return Result{}, err
	}

	result.Mask = coloredMask
	result.Annotated = annotated
	t.last = result.Measurement

	return result, nil
}

// drawOverlays builds the two output images: a BGRA copy of the frame with
// the red rotated box and green bounding box, and the mask widened to BGR
// with the green bounding box. On error neither Mat needs closing.
func drawOverlays(frame, mask gocv.Mat, result Result) (annotated, coloredMask gocv.Mat, err error) {
	annotated = gocv.NewMat()
	coloredMask = gocv.NewMat()
	defer func() {
		if err != nil {
			annotated.Close()
			coloredMask.Close()
		}
	}()

	if err = gocv.CvtColor(frame, &annotated, gocv.ColorBGRToBGRA); err != nil {
		return annotated, coloredMask, frameError(frame, "bgra conversion", err)
	}
	// A single-channel mask can't show a colored overlay
	if err = gocv.CvtColor(mask, &coloredMask, gocv.ColorGrayToBGR); err != nil {
		return annotated, coloredMask, fmt.Errorf("mask conversion: %w", err)
	}

	if result.Found {
		box := gocv.NewPointsVectorFromPoints([][]image.Point{result.Corners[:]})
		err = gocv.Polylines(&annotated, box, true, overlayRed, overlayStroke)
		box.Close()
		if err != nil {
			return annotated, coloredMask, fmt.Errorf("draw rotated box: %w", err)
		}
	}

	if err = gocv.Rectangle(&annotated, result.BoundingBox, overlayGreen, overlayStroke); err != nil {
		return annotated, coloredMask, fmt.Errorf("draw bounding box: %w", err)
	}
	if err = gocv.Rectangle(&coloredMask, result.BoundingBox, overlayGreen, overlayStroke); err != nil {
		return annotated, coloredMask, fmt.Errorf("draw mask bounding box: %w", err)
	}
	return annotated, coloredMask, nil
}

// Distance returns the last frame's distance in calibration units.
func (t *TargetTracker) Distance() float64 {
	return t.last.Distance()
}

// Angle returns the last frame's angle in degrees.
func (t *TargetTracker) Angle() float64 {
	return t.last.Angle()
}

// FocalLength returns the calibrated focal length.
func (t *TargetTracker) FocalLength() float64 {
	return t.calibration.FocalLength
}

// FittedBox returns the last frame's (height, width) in pixels.
func (t *TargetTracker) FittedBox() (float64, float64) {
	return t.last.FittedBox()
}

// Calibration returns the tracker's calibration.
func (t *TargetTracker) Calibration() measure.Calibration {
	return t.calibration
}

// Last returns the last frame's measurement.
func (t *TargetTracker) Last() measure.Measurement {
	return t.last
}

// frameError reports an OpenCV failure on a frame that passed checkFrame.
func frameError(frame gocv.Mat, step string, err error) error {
	return &measure.InvalidFrameError{
		Rows:     frame.Rows(),
		Cols:     frame.Cols(),
		Channels: frame.Channels(),
		Reason:   step,
		Err:      err,
	}
}

func checkFrame(frame gocv.Mat) error {
	if frame.Empty() {
		return &measure.InvalidFrameError{Reason: "empty frame"}
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return &measure.InvalidFrameError{
			Rows:     frame.Rows(),
			Cols:     frame.Cols(),
			Channels: frame.Channels(),
			Reason:   "expected 8-bit 3-channel BGR",
		}
	}
	return nil
}

// largestContour returns the index of the contour with the largest area, the
// first one on ties, or -1 when there are none.
func largestContour(contours gocv.PointsVector) int {
	if contours.Size() == 0 {
		return -1
	}

	largestIdx := 0
	maxArea := gocv.ContourArea(contours.At(0))
	for i := 1; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			largestIdx = i
		}
	}
	return largestIdx
}

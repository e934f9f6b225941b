package lib

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"rangefinder/internal/log"
	"rangefinder/lib/measure"
)

// DetectorConfig holds configuration parameters for the capture loop
type DetectorConfig struct {
	CameraID     int
	Bounds       measure.HSVBounds
	Calibration  measure.Calibration
	DisplayScale float64 // Scale applied to the encoded preview frames (0.35 = 35%)
	JPEGQuality  int
	View         measure.View // Which frame ShowCurrentFrame displays
	ShowWindow   bool
	WindowName   string
}

// DefaultDetectorConfig returns a configuration with a unit calibration and
// the default slider positions.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CameraID:     0,
		Bounds:       measure.DefaultHSVBounds(),
		Calibration:  measure.Calibration{KnownWidth: 1, KnownHeight: 1, FocalLength: 1},
		DisplayScale: 0.35,
		JPEGQuality:  80,
		View:         measure.ViewImage,
		ShowWindow:   false, // Default to headless mode
		WindowName:   "Distance and Angle",
	}
}

// Detector owns a camera and a TargetTracker and runs the tracker once per
// captured frame. The tracker is only touched by the capture goroutine; the
// results it publishes are safe to read from any goroutine.
type Detector struct {
	config  DetectorConfig
	webcam  *gocv.VideoCapture
	window  *gocv.Window
	tracker *TargetTracker

	mu           sync.RWMutex
	bounds       measure.HSVBounds
	calibration  measure.Calibration
	recalibrate  bool
	view         measure.View
	sequence     uint64
	snapshot     measure.Snapshot
	maskJPEG     []byte
	imageJPEG    []byte
	displayFrame gocv.Mat
	subscribers  map[chan measure.Snapshot]struct{}

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewDetector opens the configured camera and creates a detector for it.
func NewDetector(config DetectorConfig) (*Detector, error) {
	webcam, err := gocv.OpenVideoCapture(config.CameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", config.CameraID, err)
	}

	d := newDetector(config)
	d.webcam = webcam

	// Only create window if explicitly requested
	if config.ShowWindow {
		d.window = gocv.NewWindow(config.WindowName)
	}

	return d, nil
}

// newDetector builds a detector with no camera; frames are fed through
// ProcessFrame.
func newDetector(config DetectorConfig) *Detector {
	view := config.View
	if view == "" {
		view = measure.ViewImage
	}
	return &Detector{
		config:       config,
		tracker:      NewTargetTrackerWithCalibration(config.Calibration),
		bounds:       config.Bounds,
		calibration:  config.Calibration,
		view:         view,
		snapshot:     measure.NewSnapshot(0, time.Time{}, measure.Absent(config.Calibration), image.Rectangle{}, config.Bounds),
		displayFrame: gocv.NewMat(),
		subscribers:  make(map[chan measure.Snapshot]struct{}),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins capturing in a separate goroutine
func (d *Detector) Start() {
	d.mu.Lock()
	if d.running || d.webcam == nil {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.captureLoop()
}

// Stop halts capturing and waits for the loop to exit
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopChan)
	<-d.done
}

// Close releases all resources
func (d *Detector) Close() {
	d.Stop()

	if d.webcam != nil {
		d.webcam.Close()
	}

	if d.window != nil {
		d.window.Close()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.displayFrame.Close()
	for ch := range d.subscribers {
		delete(d.subscribers, ch)
		close(ch)
	}
}

// Window returns the display window, or nil in headless mode.
func (d *Detector) Window() *gocv.Window {
	return d.window
}

// Bounds returns the HSV window used for the next frame.
func (d *Detector) Bounds() measure.HSVBounds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bounds
}

// SetBounds replaces the HSV window from the next frame on.
func (d *Detector) SetBounds(b measure.HSVBounds) {
	d.mu.Lock()
	d.bounds = b
	d.mu.Unlock()
}

// Calibration returns the calibration in effect for the next frame.
func (d *Detector) Calibration() measure.Calibration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calibration
}

// SetCalibration swaps in a new tracker built from cal before the next frame.
func (d *Detector) SetCalibration(cal measure.Calibration) {
	d.mu.Lock()
	if cal != d.calibration {
		d.calibration = cal
		d.recalibrate = true
	}
	d.mu.Unlock()
}

// View returns the frame ShowCurrentFrame displays.
func (d *Detector) View() measure.View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// SetView selects the frame ShowCurrentFrame displays.
func (d *Detector) SetView(v measure.View) {
	d.mu.Lock()
	d.view = v
	d.mu.Unlock()
}

// Snapshot returns the measurement of the most recent frame
func (d *Detector) Snapshot() measure.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// FrameJPEG returns the most recent preview of the given view as JPEG bytes.
func (d *Detector) FrameJPEG(v measure.View) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var data []byte
	switch v {
	case measure.ViewMask:
		data = d.maskJPEG
	case measure.ViewImage:
		data = d.imageJPEG
	}
	return data, len(data) > 0
}

// Subscribe returns a channel that receives every new snapshot, and a
// function that cancels the subscription. Snapshots are dropped for
// subscribers that fall behind.
func (d *Detector) Subscribe() (<-chan measure.Snapshot, func()) {
	ch := make(chan measure.Snapshot, 8)

	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if _, ok := d.subscribers[ch]; ok {
				delete(d.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// ShowCurrentFrame displays the current frame in the window
// IMPORTANT: This must be called from the main thread
func (d *Detector) ShowCurrentFrame() bool {
	if !d.config.ShowWindow || d.window == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.displayFrame.Empty() {
		return false
	}

	d.window.IMShow(d.displayFrame)
	return true
}

// WaitKey waits for a key press with the given delay
// IMPORTANT: This must be called from the main thread
func (d *Detector) WaitKey(delay int) int {
	if !d.config.ShowWindow || d.window == nil {
		return -1
	}
	return d.window.WaitKey(delay)
}

// ProcessFrame runs the tracker on one frame and publishes the result.
// It must not be called concurrently with itself or with a running capture
// loop.
func (d *Detector) ProcessFrame(frame gocv.Mat) (measure.Snapshot, error) {
	d.mu.Lock()
	if d.recalibrate {
		d.tracker = NewTargetTrackerWithCalibration(d.calibration)
		d.recalibrate = false
		log.Info("calibration applied",
			"known_width", d.calibration.KnownWidth,
			"known_height", d.calibration.KnownHeight,
			"focal_length", d.calibration.FocalLength)
	}
	bounds := d.bounds
	view := d.view
	d.mu.Unlock()

	res, err := d.tracker.Update(frame, bounds)
	if err != nil {
		return measure.Snapshot{}, err
	}
	defer res.Close()

	maskJPEG, err := encodePreview(res.Mask, d.config.DisplayScale, d.config.JPEGQuality)
	if err != nil {
		return measure.Snapshot{}, err
	}
	imageJPEG, err := encodePreview(res.Annotated, d.config.DisplayScale, d.config.JPEGQuality)
	if err != nil {
		return measure.Snapshot{}, err
	}

	d.mu.Lock()
	d.sequence++
	snap := measure.NewSnapshot(d.sequence, time.Now(), res.Measurement, res.BoundingBox, bounds)
	d.snapshot = snap
	d.maskJPEG = maskJPEG
	d.imageJPEG = imageJPEG

	if d.config.ShowWindow {
		d.displayFrame.Close()
		if view == measure.ViewMask {
			d.displayFrame = res.Mask.Clone()
		} else {
			d.displayFrame = res.Annotated.Clone()
		}
	}

	for ch := range d.subscribers {
		select {
		case ch <- snap:
		default:
			// Subscriber is behind, drop this snapshot for it
		}
	}
	d.mu.Unlock()

	log.Debug("frame processed",
		"sequence", snap.Sequence,
		"found", snap.Found,
		"distance", snap.Distance,
		"angle", snap.Angle)

	return snap, nil
}

// captureLoop is the main processing loop
func (d *Detector) captureLoop() {
	defer close(d.done)

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-d.stopChan:
			return
		default:
			// Read frame from webcam
			if ok := d.webcam.Read(&img); !ok || img.Empty() {
				time.Sleep(10 * time.Millisecond) // Small delay to avoid busy waiting
				continue
			}

			if _, err := d.ProcessFrame(img); err != nil {
				var invalid *measure.InvalidFrameError
				if errors.As(err, &invalid) {
					log.Debug("skipping frame", "error", err)
				} else {
					log.Warn("frame processing failed", "error", err)
				}
			}
		}
	}
}

// encodePreview scales a frame for display and encodes it as JPEG.
func encodePreview(src gocv.Mat, scale float64, quality int) ([]byte, error) {
	preview := src
	if scale > 0 && scale != 1 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(src, &scaled, image.Point{}, scale, scale, gocv.InterpolationLinear)
		preview = scaled
	}

	if preview.Channels() == 4 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(preview, &bgr, gocv.ColorBGRAToBGR)
		preview = bgr
	}

	if quality <= 0 || quality > 100 {
		quality = 80
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, preview, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// Command tuner opens a desktop window for tuning the HSV window by hand.
// Press m to switch between mask and image, ESC to quit.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rangefinder/internal/config"
	"rangefinder/internal/log"
	"rangefinder/lib"
	"rangefinder/lib/measure"
)

const (
	keyEsc = 27
	keyM   = 'm'
)

var configPath = flag.String("config", "", "path to JSON config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuner: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	cal, err := cfg.Calibration.Calibration()
	if err != nil {
		log.Error("invalid calibration", "error", err)
		os.Exit(1)
	}

	dcfg := lib.DefaultDetectorConfig()
	dcfg.CameraID = cfg.Camera.ID
	dcfg.DisplayScale = cfg.Camera.DisplayScale
	dcfg.JPEGQuality = cfg.Camera.JPEGQuality
	dcfg.Bounds = cfg.Bounds.Normalize()
	dcfg.Calibration = cal
	dcfg.ShowWindow = true

	detector, err := lib.NewDetector(dcfg)
	if err != nil {
		log.Error("failed to create detector", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	sliders := lib.NewBoundsTrackbars(detector.Window(), dcfg.Bounds)

	fmt.Println("Starting tuner...")
	fmt.Println("Press m to toggle mask/image, Ctrl+C or ESC to exit")
	detector.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Window calls must stay on the main goroutine
	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			return
		case <-ticker.C:
			s := detector.Snapshot()
			fmt.Printf("Distance: %.3f  Angle: %.3f  Height: %.1f  Width: %.1f  Focal: %g\n",
				s.Distance, s.Angle, s.FittedHeight, s.FittedWidth, s.FocalLength)
		default:
			detector.SetBounds(sliders.Bounds())

			detector.ShowCurrentFrame()
			switch detector.WaitKey(1) {
			case keyEsc:
				fmt.Println("\nESC pressed, shutting down...")
				return
			case keyM:
				if detector.View() == measure.ViewMask {
					detector.SetView(measure.ViewImage)
				} else {
					detector.SetView(measure.ViewMask)
				}
			}

			time.Sleep(10 * time.Millisecond)
		}
	}
}

// Command rangefinder runs the target tracker headless: it serves the tuning
// panel, streams measurements to the robot over serial and optionally logs
// them to sqlite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rangefinder/internal/config"
	"rangefinder/internal/log"
	"rangefinder/internal/record"
	"rangefinder/lib"
	"rangefinder/lib/telemetry"
	"rangefinder/web"
)

var (
	configPath = flag.String("config", "", "path to JSON config file")
	listPorts  = flag.Bool("list-ports", false, "list serial ports and exit")
)

func main() {
	flag.Parse()

	if *listPorts {
		printPorts()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangefinder: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Error("rangefinder stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	cal, err := cfg.Calibration.Calibration()
	if err != nil {
		return err
	}

	dcfg := lib.DefaultDetectorConfig()
	dcfg.CameraID = cfg.Camera.ID
	dcfg.DisplayScale = cfg.Camera.DisplayScale
	dcfg.JPEGQuality = cfg.Camera.JPEGQuality
	dcfg.Bounds = cfg.Bounds.Normalize()
	dcfg.Calibration = cal

	detector, err := lib.NewDetector(dcfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Serial.Port != "" {
		interval, err := cfg.Serial.Interval()
		if err != nil {
			return err
		}
		link := telemetry.NewLink(telemetry.Config{
			PortName:       cfg.Serial.Port,
			Options:        cfg.Serial.Options,
			UpdateInterval: interval,
		})
		if err := link.Connect(); err != nil {
			return err
		}
		defer link.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := link.Run(ctx, detector); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("telemetry stopped", "error", err)
			}
			log.Info("telemetry stopped", "sentences", link.Sent())
		}()
	}

	if cfg.Record.Path != "" {
		db, err := record.Open(cfg.Record.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		sessionID, err := db.StartSession(cal)
		if err != nil {
			return err
		}
		log.Info("recording measurements", "path", cfg.Record.Path, "session", sessionID)

		snaps, cancel := detector.Subscribe()
		defer cancel()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.Run(ctx, sessionID, snaps); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("recorder stopped", "error", err)
			}
		}()
	}

	var server *web.Server
	if cfg.Web.Port != "" {
		server = web.NewServer(cfg.Web.Port, detector)
		server.StartAsync()
	}

	detector.Start()
	log.Info("rangefinder running", "camera", cfg.Camera.ID)

	<-ctx.Done()
	log.Info("shutting down")

	if server != nil {
		if err := server.Shutdown(); err != nil {
			log.Warn("web shutdown failed", "error", err)
		}
	}
	detector.Stop()
	wg.Wait()
	return nil
}

func printPorts() {
	ports, err := telemetry.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangefinder: %v\n", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found!")
		return
	}
	fmt.Println("Available serial ports:")
	for _, port := range ports {
		fmt.Println("  " + port)
	}
}

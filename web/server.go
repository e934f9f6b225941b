// Package web serves the tuning panel: HSV sliders, calibration boxes, the
// live mask or image preview and the current distance and angle.
package web

import (
	_ "embed"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"rangefinder/internal/log"
	"rangefinder/lib/measure"
)

//go:embed static/index.html
var indexHTML []byte

// Source is the detector as seen by the panel.
type Source interface {
	Snapshot() measure.Snapshot
	Bounds() measure.HSVBounds
	SetBounds(measure.HSVBounds)
	Calibration() measure.Calibration
	SetCalibration(measure.Calibration)
	View() measure.View
	SetView(measure.View)
	FrameJPEG(measure.View) ([]byte, bool)
	Subscribe() (<-chan measure.Snapshot, func())
}

// Server is the web panel server
type Server struct {
	app    *fiber.App
	port   string
	source Source
}

// NewServer creates a panel bound to src.
func NewServer(port string, src Source) *Server {
	s := &Server{
		port:   port,
		source: src,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Rangefinder",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/bounds", s.handleGetBounds)
	api.Post("/bounds", s.handleSetBounds)
	api.Get("/calibration", s.handleGetCalibration)
	api.Post("/calibration", s.handleSetCalibration)
	api.Get("/view", s.handleGetView)
	api.Post("/view", s.handleSetView)
	api.Get("/frame", s.handleFrame)
	api.Get("/frame/:view", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info("web panel listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

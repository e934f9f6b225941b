package web

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"rangefinder/internal/log"
	"rangefinder/lib/measure"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// handleStatus returns the latest measurement
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.source.Snapshot())
}

func (s *Server) handleGetBounds(c *fiber.Ctx) error {
	return c.JSON(s.source.Bounds())
}

// handleSetBounds accepts a full or partial HSVBounds body. Omitted
// channels keep their current value; the result is normalized.
func (s *Server) handleSetBounds(c *fiber.Ctx) error {
	bounds := s.source.Bounds()
	if err := c.BodyParser(&bounds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid bounds: " + err.Error(),
		})
	}
	if err := checkBounds(bounds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	bounds = bounds.Normalize()
	s.source.SetBounds(bounds)
	log.Debug("bounds updated", "lower", bounds.Lower(), "upper", bounds.Upper())
	return c.JSON(bounds)
}

// checkBounds enforces the slider ranges.
func checkBounds(b measure.HSVBounds) error {
	for _, ch := range []struct {
		name string
		v    float64
		max  float64
	}{
		{"low_h", b.LowH, measure.MaxHue},
		{"high_h", b.HighH, measure.MaxHue},
		{"low_s", b.LowS, measure.MaxValue},
		{"high_s", b.HighS, measure.MaxValue},
		{"low_v", b.LowV, measure.MaxValue},
		{"high_v", b.HighV, measure.MaxValue},
	} {
		if ch.v < 0 || ch.v > ch.max {
			return fmt.Errorf("%s must be in [0, %g], got %g", ch.name, ch.max, ch.v)
		}
	}
	return nil
}

func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	return c.JSON(s.source.Calibration())
}

// handleSetCalibration applies the calibration text boxes. Input that is
// not numeric yet leaves the calibration alone and reports applied=false.
func (s *Server) handleSetCalibration(c *fiber.Ctx) error {
	var form CalibrationForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid calibration form: " + err.Error(),
		})
	}

	cal, applied, err := ParseCalibration(form, s.source.Calibration())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if applied {
		s.source.SetCalibration(cal)
	}

	return c.JSON(fiber.Map{
		"applied":     applied,
		"calibration": cal,
	})
}

func (s *Server) handleGetView(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"view": s.source.View()})
}

// SetViewRequest is the request body for selecting the preview
type SetViewRequest struct {
	View string `json:"view" form:"view"`
}

func (s *Server) handleSetView(c *fiber.Ctx) error {
	var req SetViewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid view request: " + err.Error(),
		})
	}
	v, ok := measure.ParseView(req.View)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("unknown view %q", req.View),
		})
	}
	s.source.SetView(v)
	return c.JSON(fiber.Map{"view": v})
}

// handleFrame returns the latest preview JPEG, for the view in the path or
// the selected view when the path has none.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	v := s.source.View()
	if name := c.Params("view"); name != "" {
		parsed, ok := measure.ParseView(name)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("unknown view %q", name),
			})
		}
		v = parsed
	}

	data, ok := s.source.FrameJPEG(v)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no frame captured yet",
		})
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpg")
	return c.Send(data)
}

// handleStatusWS streams every new snapshot as JSON until the client goes
// away.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	clientID := uuid.New().String()
	snaps, cancel := s.source.Subscribe()
	defer cancel()

	log.Debug("status client connected", "client", clientID)
	defer log.Debug("status client disconnected", "client", clientID)

	// Reads only detect disconnection
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.WriteJSON(s.source.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(snap); err != nil {
				log.Debug("status write failed", "client", clientID, "error", err)
				return
			}
		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package telemetry streams target measurements to a robot controller over a
// serial line, one ASCII sentence per frame:
//
//	$TGT,<found 0|1>,<distance>,<angle>,<fitted height>,<fitted width>\n
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"rangefinder/internal/log"
	"rangefinder/lib/measure"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("telemetry port not connected")

// Config holds configuration for the telemetry link
type Config struct {
	PortName       string
	Options        PortOptions
	UpdateInterval time.Duration // How often to check for a new measurement
}

// DefaultConfig returns reasonable default settings
func DefaultConfig() Config {
	return Config{
		Options:        PortOptions{BaudRate: DefaultBaudRate},
		UpdateInterval: 50 * time.Millisecond,
	}
}

// Source provides the latest measurement to publish.
type Source interface {
	Snapshot() measure.Snapshot
}

// Link is a serial connection to the robot controller
type Link struct {
	config Config

	mu      sync.Mutex
	port    io.WriteCloser
	lastSeq uint64
	sent    uint64
}

// NewLink creates an unconnected link
func NewLink(config Config) *Link {
	return &Link{config: config}
}

// newLinkWithPort wraps an already-open writer.
func newLinkWithPort(config Config, port io.WriteCloser) *Link {
	return &Link{config: config, port: port}
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the configured serial port.
func (l *Link) Connect() error {
	mode, err := l.config.Options.SerialMode()
	if err != nil {
		return err
	}

	port, err := serial.Open(l.config.PortName, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", l.config.PortName, err)
	}

	l.mu.Lock()
	l.port = port
	l.mu.Unlock()

	log.Info("telemetry connected", "port", l.config.PortName, "baud", mode.BaudRate)
	return nil
}

// Close closes the serial port if open.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// Sent returns the number of sentences written so far.
func (l *Link) Sent() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// Publish writes one sentence for the snapshot.
func (l *Link) Publish(s measure.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return ErrNotConnected
	}

	if _, err := io.WriteString(l.port, FormatSentence(s)); err != nil {
		return fmt.Errorf("failed to write telemetry: %w", err)
	}
	l.lastSeq = s.Sequence
	l.sent++
	return nil
}

// FormatSentence renders a snapshot in the wire format.
func FormatSentence(s measure.Snapshot) string {
	found := 0
	if s.Found {
		found = 1
	}
	return fmt.Sprintf("$TGT,%d,%.2f,%.2f,%.1f,%.1f\n",
		found, s.Distance, s.Angle, s.FittedHeight, s.FittedWidth)
}

// Run publishes every new snapshot from src until ctx is cancelled. A
// snapshot is new when its sequence number differs from the last one sent.
func (l *Link) Run(ctx context.Context, src Source) error {
	interval := l.config.UpdateInterval
	if interval <= 0 {
		interval = DefaultConfig().UpdateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := src.Snapshot()

			l.mu.Lock()
			stale := snap.Sequence == 0 || snap.Sequence == l.lastSeq
			l.mu.Unlock()
			if stale {
				continue
			}

			if err := l.Publish(snap); err != nil {
				log.Warn("telemetry publish failed", "error", err)
			}
		}
	}
}

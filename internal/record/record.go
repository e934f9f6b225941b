// Package record keeps a sqlite log of measurement sessions.
package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"rangefinder/internal/log"
	"rangefinder/lib/measure"
)

// ErrUnknownSession is returned when recording against a session id that
// StartSession did not create.
var ErrUnknownSession = errors.New("unknown session")

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			known_width       DOUBLE,
			known_height      DOUBLE,
			focal_length      DOUBLE,
			started_unix_ns   BIGINT
		);
		CREATE TABLE IF NOT EXISTS measurements (
			session_id        TEXT,
			sequence          BIGINT,
			found             BOOLEAN,
			distance          DOUBLE,
			angle             DOUBLE,
			fitted_height     DOUBLE,
			fitted_width      DOUBLE,
			captured_unix_ns  BIGINT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_measurements_session
			ON measurements(session_id, sequence);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// Session is one run of the detector under a fixed calibration.
type Session struct {
	ID          string
	Calibration measure.Calibration
	StartedAt   time.Time
}

// Sample is one stored measurement row.
type Sample struct {
	Sequence     uint64
	Found        bool
	Distance     float64
	Angle        float64
	FittedHeight float64
	FittedWidth  float64
	CapturedAt   time.Time
}

// StartSession registers a new session and returns its id.
func (db *DB) StartSession(cal measure.Calibration) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, known_width, known_height, focal_length, started_unix_ns) VALUES (?, ?, ?, ?, ?)`,
		id, cal.KnownWidth, cal.KnownHeight, cal.FocalLength, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// Session looks up a session by id.
func (db *DB) Session(id string) (*Session, error) {
	var s Session
	var startedNs int64
	err := db.QueryRow(
		`SELECT session_id, known_width, known_height, focal_length, started_unix_ns FROM sessions WHERE session_id = ?`,
		id,
	).Scan(&s.ID, &s.Calibration.KnownWidth, &s.Calibration.KnownHeight, &s.Calibration.FocalLength, &startedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.StartedAt = time.Unix(0, startedNs)
	return &s, nil
}

// Record stores one snapshot under sessionID.
func (db *DB) Record(sessionID string, snap measure.Snapshot) error {
	_, err := db.Exec(
		`INSERT INTO measurements (
			session_id, sequence, found, distance, angle,
			fitted_height, fitted_width, captured_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(snap.Sequence), snap.Found, snap.Distance, snap.Angle,
		snap.FittedHeight, snap.FittedWidth, snap.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record measurement %d: %w", snap.Sequence, err)
	}
	return nil
}

// Recent returns up to n samples for sessionID, newest first.
func (db *DB) Recent(sessionID string, n int) ([]Sample, error) {
	rows, err := db.Query(
		`SELECT sequence, found, distance, angle, fitted_height, fitted_width, captured_unix_ns
		FROM measurements WHERE session_id = ? ORDER BY sequence DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var seq, capturedNs int64
		if err := rows.Scan(&seq, &s.Found, &s.Distance, &s.Angle, &s.FittedHeight, &s.FittedWidth, &capturedNs); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		s.Sequence = uint64(seq)
		s.CapturedAt = time.Unix(0, capturedNs)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Count returns how many samples sessionID holds.
func (db *DB) Count(sessionID string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM measurements WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return n, nil
}

// Run records every snapshot received on snaps until ctx is cancelled or
// snaps is closed. Write failures are logged and do not stop the loop.
func (db *DB) Run(ctx context.Context, sessionID string, snaps <-chan measure.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := db.Record(sessionID, snap); err != nil {
				log.Warn("record failed", "session", sessionID, "error", err)
			}
		}
	}
}

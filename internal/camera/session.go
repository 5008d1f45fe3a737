// Package camera owns the lifecycle of a capture device. A Session replaces
// a process-wide camera handle: it is opened by Start, read by Capture and
// released by Stop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotStarted is returned when capturing from a session that is not live.
	ErrNotStarted = errors.New("camera is not open")
	// ErrCaptureFailed is returned when the device could not produce a frame.
	ErrCaptureFailed = errors.New("error capturing image")
	// ErrOpenFailed is returned when the device could not be opened.
	ErrOpenFailed = errors.New("camera could not be opened")
	// ErrDisabled is returned when no camera source is configured.
	ErrDisabled = errors.New("camera disabled")
)

// State is the session's lifecycle state.
type State string

const (
	StateIdle State = "idle"
	StateLive State = "live"
)

// Source opens capture devices.
type Source interface {
	Name() string
	Open(ctx context.Context) (Device, error)
}

// Device is an open capture handle.
type Device interface {
	// ReadFrame returns one encoded frame.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Status describes a session for callers.
type Status struct {
	Source    string    `json:"source"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Session serializes access to one device.
type Session struct {
	source  Source
	timeout time.Duration

	mu        sync.Mutex
	dev       Device
	startedAt time.Time
}

// NewSession returns an idle session. timeout bounds each frame read; zero
// means only the caller's context applies.
func NewSession(src Source, timeout time.Duration) *Session {
	return &Session{source: src, timeout: timeout}
}

// Start opens the device. Starting a live session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if s == nil || s.source == nil {
		return ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.dev != nil {
		return nil
	}
	dev, err := s.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, s.source.Name(), err)
	}
	s.dev = dev
	s.startedAt = time.Now()
	slog.Debug("camera: started", "source", s.source.Name())
	return nil
}

// Capture reads one frame from a live session.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	if s == nil || s.source == nil {
		return nil, ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureLocked(ctx)
}

func (s *Session) captureLocked(ctx context.Context) ([]byte, error) {
	if s.dev == nil {
		return nil, ErrNotStarted
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	frame, err := s.dev.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCaptureFailed)
	}
	return frame, nil
}

// Stop releases the device. Stopping an idle session is a no-op.
func (s *Session) Stop() error {
	if s == nil || s.source == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	if s.dev == nil {
		return nil
	}
	err := s.dev.Close()
	s.dev = nil
	s.startedAt = time.Time{}
	slog.Debug("camera: stopped", "source", s.source.Name())
	if err != nil {
		return fmt.Errorf("close %s: %w", s.source.Name(), err)
	}
	return nil
}

// CaptureOnce starts the session if needed, grabs one frame and stops the
// session on every path, so a single capture never leaves the device open.
func (s *Session) CaptureOnce(ctx context.Context) ([]byte, error) {
	if s == nil || s.source == nil {
		return nil, ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return nil, err
	}
	frame, err := s.captureLocked(ctx)
	if stopErr := s.stopLocked(); stopErr != nil {
		slog.Warn("camera: release after capture failed", "error", stopErr)
	}
	return frame, err
}

// Status reports the current state.
func (s *Session) Status() Status {
	if s == nil || s.source == nil {
		return Status{Source: "none", State: StateIdle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Source: s.source.Name(), State: StateIdle}
	if s.dev != nil {
		st.State = StateLive
		st.StartedAt = s.startedAt
	}
	return st
}

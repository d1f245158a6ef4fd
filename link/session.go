// Package link implements the transport session shared by the protocol
// clients: one physical connection (serial port or TCP socket), one
// transaction at a time.
//
// A round trip discards pending input, writes the request frame and then
// polls the port until the reply is complete, the line falls silent after
// enough bytes arrived, or the response timeout elapses without new bytes.
// Slow serial adapters deliver replies in dribbles, so the timeout window
// restarts whenever new bytes show up.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-plclink/internal/util"
	"github.com/arloliu/go-plclink/logger"
)

// Request is one frame to send and a description of the expected reply.
type Request struct {
	// Name labels the trace span, e.g. "fxlink:WR".
	Name string
	// Frame holds the encoded request bytes.
	Frame []byte
	// MinLength is the shortest acceptable reply. Defaults to DefaultMinLength.
	MinLength int
	// Complete reports whether buf holds a whole reply frame. Optional; when
	// nil the reply ends once MinLength bytes arrived and the line is silent
	// for one poll interval.
	Complete func(buf []byte) bool
}

// Session owns one port and serializes transactions on it.
//
// The port is opened lazily by the first round trip. Session is safe for
// concurrent use; callers are served one round trip at a time.
type Session struct {
	name   string
	cfg    *Config
	dial   Dialer
	logger logger.Logger

	mu      sync.Mutex
	port    Port
	closed  bool
	state   atomicState
	metrics Metrics
}

// NewSession creates a session for the endpoint name (port name or address)
// using dial to open the port.
func NewSession(name string, dial Dialer, opts ...Option) (*Session, error) {
	if dial == nil {
		return nil, ErrNoDialer
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		name:   name,
		cfg:    cfg,
		dial:   dial,
		logger: cfg.logger.With("component", "link", "endpoint", name),
	}, nil
}

// Name returns the endpoint name.
func (s *Session) Name() string { return s.name }

// Config returns the session configuration.
func (s *Session) Config() *Config { return s.cfg }

// State returns the current transaction state.
func (s *Session) State() State { return s.state.get() }

// Metrics returns the session counters.
func (s *Session) Metrics() *Metrics { return &s.metrics }

// Open opens the port if it is not open yet.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	return s.openLocked(ctx)
}

// Close closes the port. A closed session cannot be reopened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.state.set(StateClosed)
	s.logger.Info("port closed")

	return err
}

// RoundTrip sends req.Frame and returns the raw reply bytes.
//
// It returns an error wrapping ErrTimeout when fewer than req.MinLength
// bytes arrived within the response timeout. Any other I/O error drops the
// port so that the next round trip dials again.
func (s *Session) RoundTrip(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Frame) == 0 {
		return nil, ErrEmptyFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := s.openLocked(ctx); err != nil {
		return nil, err
	}

	span := s.cfg.tracer.Start(req.Name, util.HexDump(req.Frame))
	defer span.End()

	reply, err := s.exchangeLocked(ctx, req)
	if len(reply) > 0 {
		span.AppendTag(util.HexDump(reply))
	}
	if err != nil {
		span.SetError(err)

		switch {
		case errors.Is(err, ErrTimeout):
			s.metrics.incTimeout()
			s.logger.Debug("response timeout", "name", req.Name, "received", len(reply))
		case ctx.Err() != nil:
		default:
			s.metrics.incIOErr()
			s.logger.Error("round trip failed", "name", req.Name, "error", err)
			s.dropLocked()
		}

		return nil, err
	}

	return reply, nil
}

func (s *Session) openLocked(ctx context.Context) error {
	if s.port != nil {
		return nil
	}

	p, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.port = p
	s.state.set(StateIdle)
	s.metrics.incOpen()
	s.logger.Info("port opened",
		"timeout", s.cfg.timeout,
		"pollInterval", s.cfg.pollInterval,
	)

	return nil
}

func (s *Session) dropLocked() {
	if s.port == nil {
		return
	}
	_ = s.port.Close()
	s.port = nil
	s.state.set(StateClosed)
}

func (s *Session) exchangeLocked(ctx context.Context, req Request) ([]byte, error) {
	s.state.set(StateSending)
	defer func() {
		if s.port != nil {
			s.state.set(StateIdle)
		}
	}()

	if err := s.port.Discard(); err != nil {
		return nil, fmt.Errorf("link: discard input: %w", err)
	}

	s.logger.Debug("=>", "name", req.Name, "frame", util.HexDump(req.Frame))

	if _, err := s.port.Write(req.Frame); err != nil {
		return nil, fmt.Errorf("link: write frame: %w", err)
	}
	s.metrics.incFrameSend(len(req.Frame))

	s.state.set(StateWaiting)
	reply, err := s.waitReply(ctx, req)
	if err != nil {
		return reply, err
	}
	s.metrics.incFrameRecv(len(reply))

	s.logger.Debug("<=", "name", req.Name, "frame", util.HexDump(reply))

	return reply, nil
}

// waitReply collects reply bytes. The silence window restarts whenever the
// received count changes.
func (s *Session) waitReply(ctx context.Context, req Request) ([]byte, error) {
	minLen := req.MinLength
	if minLen <= 0 {
		minLen = DefaultMinLength
	}

	size := s.cfg.bufferSize
	buf := make([]byte, 0, size)
	chunk := make([]byte, size)
	lastChange := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return buf, err
		}

		room := size - len(buf)
		if room == 0 {
			return buf, nil
		}

		n, err := s.port.ReadTimeout(chunk[:room], s.cfg.pollInterval)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			lastChange = time.Now()

			if req.Complete != nil && len(buf) >= minLen && req.Complete(buf) {
				return buf, nil
			}
		}
		if err != nil {
			return buf, fmt.Errorf("link: read reply: %w", err)
		}
		if n > 0 {
			continue
		}

		if req.Complete == nil && len(buf) >= minLen {
			return buf, nil
		}

		if time.Since(lastChange) >= s.cfg.timeout {
			if len(buf) >= minLen {
				// Let the codec judge a reply the predicate did not recognize.
				return buf, nil
			}

			return buf, fmt.Errorf("%w: %d bytes after %v", ErrTimeout, len(buf), s.cfg.timeout)
		}
	}
}

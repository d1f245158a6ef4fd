package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/trace"
)

// Default session parameters.
const (
	DefaultTimeout      = 3000 * time.Millisecond // Response timeout
	DefaultPollInterval = 10 * time.Millisecond   // Byte-availability poll period
	DefaultBufferSize   = 256                     // Reply buffer
	DefaultMinLength    = 4                       // Shortest useful reply
)

// Session parameter limits.
const (
	MinTimeout = 50 * time.Millisecond
	MaxTimeout = 60 * time.Second

	MinPollInterval = 1 * time.Millisecond
	MaxPollInterval = 1 * time.Second

	MinBufferSize = 16
	MaxBufferSize = 64 * 1024
)

// Config holds the parameters of a Session.
type Config struct {
	timeout      time.Duration
	pollInterval time.Duration
	bufferSize   int

	logger logger.Logger
	tracer trace.Tracer
}

// NewConfig creates a session configuration from the defaults and opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		bufferSize:   DefaultBufferSize,
		logger:       logger.GetLogger(),
		tracer:       trace.Nop,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.pollInterval > cfg.timeout {
		return nil, fmt.Errorf("link: poll interval %v exceeds timeout %v", cfg.pollInterval, cfg.timeout)
	}

	return cfg, nil
}

// --- Getters ---

// Timeout returns the response timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// PollInterval returns the byte-availability poll period.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// BufferSize returns the reply buffer size.
func (cfg *Config) BufferSize() int { return cfg.bufferSize }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Tracer returns the configured tracer.
func (cfg *Config) Tracer() trace.Tracer { return cfg.tracer }

// --- Option ---

// Option is a functional option for configuring a Session.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTimeout sets how long the session waits for reply bytes. The window
// restarts every time new bytes arrive.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("link: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithPollInterval sets the period at which the port is polled for new bytes.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("link: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithBufferSize sets the maximum reply size in bytes.
func WithBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinBufferSize || n > MaxBufferSize {
			return fmt.Errorf("link: buffer size %d out of range [%d, %d]", n, MinBufferSize, MaxBufferSize)
		}
		cfg.bufferSize = n

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("link: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTracer sets the tracer receiving one span per round trip.
func WithTracer(t trace.Tracer) Option {
	return optFunc(func(cfg *Config) error {
		if t == nil {
			return errors.New("link: tracer must not be nil")
		}
		cfg.tracer = t

		return nil
	})
}

package driver

import (
	"errors"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/trace"
)

// DialerFactory builds the dialer of a new shared session.
type DialerFactory func(p Params) link.Dialer

// Config holds the parameters of a driver.
type Config struct {
	logger   logger.Logger
	tracer   trace.Tracer
	dialer   DialerFactory
	linkOpts []link.Option
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		logger: logger.GetLogger(),
		tracer: trace.Nop,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// sessionOptions returns the link options for a session serving p. The
// reply buffer holds replySize bytes, the longest frame of the protocol.
func (cfg *Config) sessionOptions(p Params, replySize int) []link.Option {
	opts := []link.Option{
		link.WithLogger(cfg.logger),
		link.WithTracer(cfg.tracer),
	}
	if replySize > link.DefaultBufferSize {
		opts = append(opts, link.WithBufferSize(replySize))
	}
	if p.Timeout > 0 {
		opts = append(opts, link.WithTimeout(p.Timeout))
	}

	// explicit link options win over node parameters
	return append(opts, cfg.linkOpts...)
}

// Option is a functional option for configuring a driver.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithLogger sets the logger shared by the driver, its sessions and clients.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("driver: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTracer sets the tracer handed to every session.
func WithTracer(t trace.Tracer) Option {
	return optFunc(func(cfg *Config) error {
		if t == nil {
			return errors.New("driver: tracer must not be nil")
		}
		cfg.tracer = t

		return nil
	})
}

// WithDialer replaces the dialer chosen from the node network. Tests use it
// to hand out in-memory ports.
func WithDialer(f DialerFactory) Option {
	return optFunc(func(cfg *Config) error {
		if f == nil {
			return errors.New("driver: dialer factory must not be nil")
		}
		cfg.dialer = f

		return nil
	})
}

// WithLinkOptions appends options applied to every session the driver
// creates.
func WithLinkOptions(opts ...link.Option) Option {
	return optFunc(func(cfg *Config) error {
		cfg.linkOpts = append(cfg.linkOpts, opts...)
		return nil
	})
}

package fxlink

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-plclink/logger"
)

// MaxWait is the largest message wait value, in units of 10 ms.
const MaxWait = 0x0F

// Config holds the parameters of a Client.
type Config struct {
	pc     byte
	wait   byte
	logger logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		pc:     DefaultPC,
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// PC returns the PC number sent with every request.
func (cfg *Config) PC() byte { return cfg.pc }

// Wait returns the message wait sent with every request.
func (cfg *Config) Wait() byte { return cfg.wait }

// Option is a functional option for configuring a Client.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithPC sets the PC number. The default 0xFF addresses the controller the
// link unit is attached to.
func WithPC(pc byte) Option {
	return optFunc(func(cfg *Config) error {
		cfg.pc = pc
		return nil
	})
}

// WithWait sets the message wait, 0 to 15 in units of 10 ms, that the
// controller inserts before answering.
func WithWait(wait byte) Option {
	return optFunc(func(cfg *Config) error {
		if wait > MaxWait {
			return fmt.Errorf("fxlink: wait %d out of range [0, %d]", wait, MaxWait)
		}
		cfg.wait = wait

		return nil
	})
}

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("fxlink: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

package modbus

import (
	"errors"

	"github.com/arloliu/go-plclink/logger"
)

// Config holds the parameters of a Client.
type Config struct {
	protocolID uint16
	logger     logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{logger: logger.GetLogger()}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ProtocolID returns the MBAP protocol identifier.
func (cfg *Config) ProtocolID() uint16 { return cfg.protocolID }

// Option is a functional option for configuring a Client.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithProtocolID sets the MBAP protocol identifier, 0 for Modbus.
func WithProtocolID(id uint16) Option {
	return optFunc(func(cfg *Config) error {
		cfg.protocolID = id
		return nil
	})
}

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("modbus: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// Package publish forwards polled point values to external sinks.
//
// A Sample is the outcome of one poll of one device. Publishers deliver
// samples to an MQTT broker (one JSON message per point plus one per device)
// or to InfluxDB (one point per sample, one field per value).
package publish

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected  = errors.New("publish: not connected")
	ErrPublishFailed = errors.New("publish: publish failed")
)

// Sample is one poll result of one device.
type Sample struct {
	Device string
	Values map[string]any
	Time   time.Time
}

// Publisher delivers samples.
type Publisher interface {
	Publish(ctx context.Context, s Sample) error
	Close() error
}

// Multi fans a sample out to every publisher. Failures of one publisher do
// not stop the others; the errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, s Sample) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Package poller reads every configured device on a fixed interval and
// hands the values to a publisher.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-plclink/driver"
	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/point"
	"github.com/arloliu/go-plclink/publish"
)

// Reader is implemented by driver.FxLinkDriver and driver.ModbusDriver.
type Reader interface {
	Read(ctx context.Context, n *driver.Node, points []point.Point) (map[string]any, error)
}

// Device is one polled node.
type Device struct {
	Name   string
	Reader Reader
	Node   *driver.Node
	Points []point.Point
}

// Poller polls devices one after the other.
type Poller struct {
	devices   []Device
	publisher publish.Publisher
	interval  time.Duration
	logger    logger.Logger
	now       func() time.Time
}

// New creates a poller. publisher may be nil.
func New(devices []Device, publisher publish.Publisher, interval time.Duration, l logger.Logger) *Poller {
	return &Poller{
		devices:   devices,
		publisher: publisher,
		interval:  interval,
		logger:    l.With("component", "poller"),
		now:       time.Now,
	}
}

// Run polls until ctx is done. The first poll starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce reads every device once and publishes the non-empty samples.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, d := range p.devices {
		if ctx.Err() != nil {
			return
		}

		start := p.now()
		values, err := d.Reader.Read(ctx, d.Node, d.Points)
		if err != nil {
			if errors.Is(err, driver.ErrNodeClosed) {
				p.logger.Warn("device closed", "device", d.Name)
			} else {
				p.logger.Error("poll failed", "device", d.Name, "error", err)
			}
			continue
		}

		p.logger.Debug("polled",
			"device", d.Name,
			"values", len(values),
			"points", len(d.Points),
			"elapsed", p.now().Sub(start),
		)
		if len(values) < len(d.Points) {
			p.logger.Warn("incomplete poll", "device", d.Name, "missing", len(d.Points)-len(values))
		}

		if len(values) == 0 || p.publisher == nil {
			continue
		}

		sample := publish.Sample{Device: d.Name, Values: values, Time: start}
		if err := p.publisher.Publish(ctx, sample); err != nil {
			p.logger.Error("publish failed", "device", d.Name, "error", err)
		}
	}
}

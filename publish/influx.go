package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/arloliu/go-plclink/config"
	"github.com/arloliu/go-plclink/logger"
)

const defaultPingTimeout = 5 * time.Second

// Influx writes samples as InfluxDB points: the measurement from the
// configuration, a "device" tag and one field per point value.
//
// Writes are batched and non-blocking; write failures are logged.
type Influx struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPI
	measurement string
	logger      logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewInflux creates the client and checks that the server is reachable.
func NewInflux(ctx context.Context, cfg config.InfluxDBConfig, l logger.Logger) (*Influx, error) {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = config.DefaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = config.DefaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())), //nolint:gosec // positive
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrNotConnected, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s is not healthy", ErrNotConnected, cfg.URL)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = config.DefaultMeasurement
	}

	in := &Influx{
		client:      client,
		writeAPI:    client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: measurement,
		logger:      l.With("component", "influxdb", "url", cfg.URL),
		done:        make(chan struct{}),
	}
	go in.watchErrors(in.writeAPI.Errors())

	return in, nil
}

func (in *Influx) watchErrors(errs <-chan error) {
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			in.logger.Error("write failed", "error", err)
		case <-in.done:
			return
		}
	}
}

// Point converts a sample into an InfluxDB point. Values without a line
// protocol representation are dropped. It returns nil when no field is left.
func (in *Influx) Point(s Sample) *write.Point {
	fields := make(map[string]any, len(s.Values))
	for name, v := range s.Values {
		switch v.(type) {
		case bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			fields[name] = v
		default:
			in.logger.Debug("value dropped", "device", s.Device, "point", name, "type", fmt.Sprintf("%T", v))
		}
	}
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(in.measurement, map[string]string{"device": s.Device}, fields, s.Time)
}

// Publish queues the sample for the next batch.
func (in *Influx) Publish(_ context.Context, s Sample) error {
	if p := in.Point(s); p != nil {
		in.writeAPI.WritePoint(p)
	}

	return nil
}

// Flush writes all queued points.
func (in *Influx) Flush() {
	in.writeAPI.Flush()
}

// Close flushes pending points and closes the client.
func (in *Influx) Close() error {
	in.closeOnce.Do(func() {
		in.writeAPI.Flush()
		close(in.done)
		in.client.Close()
	})

	return nil
}

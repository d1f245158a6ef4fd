// Command plcpoll polls FX link and Modbus controllers and forwards the
// values to MQTT and InfluxDB.
//
// The configuration file is taken from -config, PLCLINK_CONFIG or
// ./plcpoll.yaml, in that order of precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-plclink/config"
	"github.com/arloliu/go-plclink/driver"
	"github.com/arloliu/go-plclink/internal/poller"
	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/publish"
	"github.com/arloliu/go-plclink/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "plcpoll:", err)
		os.Exit(1)
	}
}

// opened remembers how to close a node.
type opened struct {
	node  *driver.Node
	close func(*driver.Node) error
}

func run() error {
	path := flag.String("config", "", "configuration file")
	flag.Parse()

	cfg, err := config.Load(config.Path(*path))
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log := logger.NewSlog(logger.Options{Level: level, Format: cfg.Logging.Format})
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tracer trace.Tracer = trace.Nop
	if cfg.Trace.File != "" {
		rec, err := trace.OpenFile(cfg.Trace.File)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error("failed to close trace capture", "error", err)
			}
		}()
		tracer = rec
	}

	opts := []driver.Option{driver.WithLogger(log), driver.WithTracer(tracer)}
	fx, err := driver.NewFxLinkDriver(opts...)
	if err != nil {
		return err
	}
	mb, err := driver.NewModbusDriver(opts...)
	if err != nil {
		return err
	}

	var (
		devices []poller.Device
		nodes   []opened
	)
	defer func() {
		for _, o := range nodes {
			if err := o.close(o.node); err != nil && !errors.Is(err, driver.ErrNodeClosed) {
				log.Warn("failed to close node", "endpoint", o.node.Endpoint, "error", err)
			}
		}
	}()

	for _, dc := range cfg.Devices {
		params, err := dc.Params()
		if err != nil {
			return fmt.Errorf("device %s: %w", dc.Name, err)
		}

		var (
			node   *driver.Node
			reader poller.Reader
		)
		switch dc.Protocol {
		case config.ProtocolModbus:
			node, err = mb.Open(params)
			reader = mb
			if err == nil {
				nodes = append(nodes, opened{node, mb.Close})
			}
		default:
			node, err = fx.Open(params)
			reader = fx
			if err == nil {
				nodes = append(nodes, opened{node, fx.Close})
			}
		}
		if err != nil {
			return fmt.Errorf("device %s: %w", dc.Name, err)
		}

		log.Info("device opened", "device", dc.Name, "protocol", dc.Protocol, "endpoint", node.Key(), "points", len(dc.Points))
		devices = append(devices, poller.Device{Name: dc.Name, Reader: reader, Node: node, Points: dc.Points})
	}

	var publishers publish.Multi
	if cfg.MQTT.Enabled {
		m, err := publish.NewMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		publishers = append(publishers, m)
	}
	if cfg.InfluxDB.Enabled {
		in, err := publish.NewInflux(ctx, cfg.InfluxDB, log)
		if err != nil {
			_ = publishers.Close()
			return err
		}
		publishers = append(publishers, in)
	}
	defer func() {
		if err := publishers.Close(); err != nil {
			log.Warn("failed to close publishers", "error", err)
		}
	}()

	var pub publish.Publisher
	if len(publishers) > 0 {
		pub = publishers
	}

	log.Info("polling", "devices", len(devices), "interval", cfg.Interval)
	err = poller.New(devices, pub, cfg.Interval, log).Run(ctx)
	log.Info("stopped")

	return err
}

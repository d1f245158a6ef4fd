// Package modbus implements a Modbus master for RTU (serial, CRC16) and TCP
// (MBAP header) links on top of link.Session.
//
// Reads return one byte per coil or discrete input (0 or 1) and one uint16
// per register. Writes return the number of elements the device
// acknowledged, or -1 when it did not answer.
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/trace"
)

// DefaultTCPPort is the registered Modbus TCP port.
const DefaultTCPPort = link.DefaultModbusTCPPort

// Client sends Modbus requests over a link.Session.
type Client struct {
	session *link.Session
	mode    Mode
	cfg     *Config
	logger  logger.Logger
	tracer  trace.Tracer

	tid atomic.Uint32
}

// NewClient creates a client framing requests for mode.
func NewClient(session *link.Session, mode Mode, opts ...Option) (*Client, error) {
	if session == nil {
		return nil, errors.New("modbus: session must not be nil")
	}
	if mode != RTU && mode != TCP {
		return nil, fmt.Errorf("modbus: unknown mode %s", mode)
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		session: session,
		mode:    mode,
		cfg:     cfg,
		logger:  cfg.logger.With("component", "modbus", "mode", mode.String(), "endpoint", session.Name()),
		tracer:  session.Config().Tracer(),
	}, nil
}

// Session returns the underlying session.
func (c *Client) Session() *link.Session { return c.session }

// Mode returns the framing mode.
func (c *Client) Mode() Mode { return c.mode }

// SendCommand builds a request and sends it. See Send.
func (c *Client) SendCommand(ctx context.Context, host byte, fn Function, address uint16, payload []byte) (*Reply, error) {
	return c.Send(ctx, &Request{Host: host, Function: fn, Address: address, Payload: payload})
}

// Send writes req and decodes the reply.
//
// It returns (nil, nil) when the device did not answer in time. An
// exception reply is returned as an *ExceptionError. A CRC mismatch is
// logged and the reply used.
func (c *Client) Send(ctx context.Context, req *Request) (*Reply, error) {
	if !req.Function.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, req.Function)
	}

	if c.mode == TCP {
		req.TransactionID = uint16(c.tid.Add(1)) //nolint:gosec // MBAP transaction ids wrap
		req.ProtocolID = c.cfg.protocolID
	}

	c.logger.Debug("=>", "request", req.String())

	minLen := minRTUReply
	if c.mode == TCP {
		minLen = minTCPReply
	}

	raw, err := c.session.RoundTrip(ctx, link.Request{
		Name:      "modbus:" + req.Function.String(),
		Frame:     req.Encode(c.mode),
		MinLength: minLen,
		Complete:  replyComplete(c.mode),
	})
	if err != nil {
		if errors.Is(err, link.ErrTimeout) {
			return nil, nil
		}

		return nil, err
	}

	metrics := c.session.Metrics()

	rs, err := DecodeReply(c.mode, raw)
	if err != nil {
		return nil, err
	}

	if c.mode == TCP && rs.TransactionID != req.TransactionID {
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrTransactionMismatch, req.TransactionID, rs.TransactionID)
	}
	if c.mode == RTU && !rs.CRCValid() {
		metrics.ChecksumErrCount.Add(1)
		c.logger.Warn("CRC mismatch",
			"request", req.String(),
			"received", fmt.Sprintf("%04X", rs.CRC),
			"computed", fmt.Sprintf("%04X", rs.ComputedCRC),
		)
	}
	if rs.Function != req.Function {
		return nil, fmt.Errorf("%w: sent %s, received %s", ErrUnexpectedReply, req.Function, rs.Function)
	}
	if err := rs.Err(); err != nil {
		metrics.ProtocolErrCount.Add(1)
		c.logger.Warn("exception reply", "request", req.String(), "code", rs.Exception.String())

		return nil, err
	}

	c.logger.Debug("<=", "reply", rs.String())

	return rs, nil
}

// ===========================================================================
// Reads
// ===========================================================================

// Read dispatches on fn. Bit functions return []byte, register functions
// []uint16.
func (c *Client) Read(ctx context.Context, fn Function, host byte, address uint16, count int) (any, error) {
	switch fn {
	case ReadCoil, ReadDiscrete:
		return c.readBits(ctx, fn, host, address, count)
	case ReadRegister, ReadInput:
		return c.readRegisters(ctx, fn, host, address, count)
	}

	return nil, fmt.Errorf("%w: read with %s", ErrUnsupportedFunction, fn)
}

// ReadCoils reads count coils, one 0/1 byte per coil.
func (c *Client) ReadCoils(ctx context.Context, host byte, address uint16, count int) ([]byte, error) {
	return c.readBits(ctx, ReadCoil, host, address, count)
}

// ReadDiscretes reads count discrete inputs, one 0/1 byte per input.
func (c *Client) ReadDiscretes(ctx context.Context, host byte, address uint16, count int) ([]byte, error) {
	return c.readBits(ctx, ReadDiscrete, host, address, count)
}

// ReadRegisters reads count holding registers.
func (c *Client) ReadRegisters(ctx context.Context, host byte, address uint16, count int) ([]uint16, error) {
	return c.readRegisters(ctx, ReadRegister, host, address, count)
}

// ReadInputs reads count input registers.
func (c *Client) ReadInputs(ctx context.Context, host byte, address uint16, count int) ([]uint16, error) {
	return c.readRegisters(ctx, ReadInput, host, address, count)
}

func (c *Client) readBits(ctx context.Context, fn Function, host byte, address uint16, count int) ([]byte, error) {
	span := c.tracer.Start("modbus:"+fn.String(), fmt.Sprintf("host=%d address=%d/0x%04X count=%d", host, address, address, count))
	defer span.End()

	rs, err := c.read(ctx, fn, host, address, count)
	if err != nil || rs == nil {
		span.SetError(err)
		return nil, err
	}

	bits, err := UnpackBits(rs.Payload, count)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return bits, nil
}

func (c *Client) readRegisters(ctx context.Context, fn Function, host byte, address uint16, count int) ([]uint16, error) {
	span := c.tracer.Start("modbus:"+fn.String(), fmt.Sprintf("host=%d address=%d/0x%04X count=%d", host, address, address, count))
	defer span.End()

	rs, err := c.read(ctx, fn, host, address, count)
	if err != nil || rs == nil {
		span.SetError(err)
		return nil, err
	}

	words, err := Registers(rs.Payload)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(words) < count {
		err = fmt.Errorf("%w: %d registers requested, %d received", ErrMalformedFrame, count, len(words))
		span.SetError(err)

		return nil, err
	}

	return words, nil
}

func (c *Client) read(ctx context.Context, fn Function, host byte, address uint16, count int) (*Reply, error) {
	payload, err := QuantityPayload(fn, count)
	if err != nil {
		return nil, err
	}

	rs, err := c.SendCommand(ctx, host, fn, address, payload)
	if err != nil {
		return nil, err
	}
	if rs == nil || len(rs.Payload) == 0 {
		return nil, nil
	}

	return rs, nil
}

// ===========================================================================
// Writes
// ===========================================================================

// Write dispatches on fn. Single-element functions write values[0].
func (c *Client) Write(ctx context.Context, fn Function, host byte, address uint16, values []uint16) (int, error) {
	if fn.IsWrite() && len(values) == 0 {
		return -1, fmt.Errorf("%w: no values", ErrInvalidQuantity)
	}

	switch fn {
	case WriteCoil:
		return c.WriteCoil(ctx, host, address, values[0])
	case WriteRegister:
		return c.WriteRegister(ctx, host, address, values[0])
	case WriteCoils:
		return c.WriteCoils(ctx, host, address, values...)
	case WriteRegisters:
		return c.WriteRegisters(ctx, host, address, values...)
	}

	return -1, fmt.Errorf("%w: write with %s", ErrUnsupportedFunction, fn)
}

// WriteCoil switches one coil; any nonzero value is ON.
func (c *Client) WriteCoil(ctx context.Context, host byte, address uint16, value uint16) (int, error) {
	return c.write(ctx, WriteCoil, host, address, []uint16{value}, func() ([]byte, error) {
		return SingleCoilPayload(value), nil
	})
}

// WriteRegister writes one holding register.
func (c *Client) WriteRegister(ctx context.Context, host byte, address uint16, value uint16) (int, error) {
	return c.write(ctx, WriteRegister, host, address, []uint16{value}, func() ([]byte, error) {
		return SingleRegisterPayload(value), nil
	})
}

// WriteCoils switches consecutive coils.
func (c *Client) WriteCoils(ctx context.Context, host byte, address uint16, values ...uint16) (int, error) {
	return c.write(ctx, WriteCoils, host, address, values, func() ([]byte, error) {
		return CoilsPayload(values)
	})
}

// WriteRegisters writes consecutive holding registers.
func (c *Client) WriteRegisters(ctx context.Context, host byte, address uint16, values ...uint16) (int, error) {
	return c.write(ctx, WriteRegisters, host, address, values, func() ([]byte, error) {
		return RegistersPayload(values)
	})
}

func (c *Client) write(ctx context.Context, fn Function, host byte, address uint16, values []uint16,
	build func() ([]byte, error),
) (int, error) {
	span := c.tracer.Start("modbus:"+fn.String(), fmt.Sprintf("host=%d address=%d/0x%04X values=%v", host, address, address, values))
	defer span.End()

	payload, err := build()
	if err != nil {
		span.SetError(err)
		return -1, err
	}

	rs, err := c.SendCommand(ctx, host, fn, address, payload)
	if err != nil {
		span.SetError(err)
		return -1, err
	}
	if rs == nil {
		return -1, nil
	}

	if fn == WriteCoils || fn == WriteRegisters {
		// echo: address + quantity
		return int(binary.BigEndian.Uint16(rs.Payload)), nil
	}

	return 1, nil
}

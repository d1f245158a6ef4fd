// Package fxlink implements the Mitsubishi FX computer-link protocol: an
// ASCII-hex request/response exchange with a programmable controller over a
// serial line (or a serial-to-Ethernet bridge).
//
// A request is an ENQ frame naming a station, a command (BR, WR, BW, WW), a
// device address and an element count. The controller answers a read with
// an STX frame, a write with ACK and any failure with NAK plus an error code.
//
//	client, _ := fxlink.NewClient(session)
//	words, err := client.ReadWord(ctx, 1, "D100", 2)
package fxlink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-plclink/internal/util"
	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/logger"
	"github.com/arloliu/go-plclink/trace"
)

// minReplyLength is the size of the shortest reply, ACK + station + PC.
const minReplyLength = 5

// Client sends computer-link commands over a link.Session.
//
// Client is safe for concurrent use; the session serializes round trips.
type Client struct {
	session *link.Session
	cfg     *Config
	logger  logger.Logger
	tracer  trace.Tracer
}

// NewClient creates a client on top of session.
func NewClient(session *link.Session, opts ...Option) (*Client, error) {
	if session == nil {
		return nil, errors.New("fxlink: session must not be nil")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		session: session,
		cfg:     cfg,
		logger:  cfg.logger.With("component", "fxlink", "endpoint", session.Name()),
		tracer:  session.Config().Tracer(),
	}, nil
}

// Session returns the underlying session.
func (c *Client) Session() *link.Session { return c.session }

// SendCommand builds a request from the arguments and sends it. See Send.
func (c *Client) SendCommand(ctx context.Context, station byte, command, address string, data []byte) (*Message, error) {
	req, err := NewRequest(station, c.cfg.pc, command, address, data)
	if err != nil {
		return nil, err
	}
	req.Wait = c.cfg.wait

	return c.Send(ctx, req)
}

// Send writes req and decodes the reply.
//
// It returns (nil, nil) when the controller did not answer in time or the
// reply is too short to carry a header. A NAK reply is returned as a
// *ProtocolError. A checksum mismatch is only logged; the reply is used.
func (c *Client) Send(ctx context.Context, req *Message) (*Message, error) {
	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("=>", "message", req.String())

	raw, err := c.session.RoundTrip(ctx, link.Request{
		Name:      "fxlink:" + req.Command,
		Frame:     frame,
		MinLength: minReplyLength,
		Complete:  frameComplete,
	})
	if err != nil {
		if errors.Is(err, link.ErrTimeout) {
			return nil, nil
		}

		return nil, err
	}

	// control byte + checksum, at least station digits in between
	if len(raw)-2 < 2 {
		return nil, nil
	}

	metrics := c.session.Metrics()

	rs, err := req.DecodeReply(raw)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			metrics.ProtocolErrCount.Add(1)
			c.logger.Warn("negative acknowledgement", "request", req.String(), "code", perr.Code.String())
		}

		return nil, err
	}

	if !rs.ChecksumValid() {
		metrics.ChecksumErrCount.Add(1)
		c.logger.Warn("checksum mismatch",
			"request", req.String(),
			"received", fmt.Sprintf("%02X", rs.Checksum),
			"computed", fmt.Sprintf("%02X", rs.ComputedChecksum),
		)
	}

	c.logger.Debug("<=", "message", rs.String())

	return rs, nil
}

// ===========================================================================
// Reads
// ===========================================================================

// Read dispatches to ReadBit for BR and ReadWord for WR.
func (c *Client) Read(ctx context.Context, command string, station byte, address string, count int) (any, error) {
	switch command {
	case BitRead:
		return c.ReadBit(ctx, station, address, count)
	case WordRead:
		return c.ReadWord(ctx, station, address, count)
	}

	return nil, fmt.Errorf("%w: read with %q", ErrUnsupportedCommand, command)
}

// ReadBit reads count bit devices (X, Y, M, S) starting at address. Each
// returned byte is 0 or 1. It returns nil without error on timeout.
func (c *Client) ReadBit(ctx context.Context, station byte, address string, count int) ([]byte, error) {
	span := c.tracer.Start("fxlink:ReadBit", fmt.Sprintf("station=%d address=%s count=%d", station, address, count))
	defer span.End()

	rs, err := c.read(ctx, BitRead, station, address, count)
	if err != nil || rs == nil {
		span.SetError(err)
		return nil, err
	}

	bits, err := rs.Bits()
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.AppendTag(string(rs.Payload))

	return bits, nil
}

// ReadWord reads count word devices (D, T, C) starting at address. It
// returns nil without error on timeout.
func (c *Client) ReadWord(ctx context.Context, station byte, address string, count int) ([]uint16, error) {
	span := c.tracer.Start("fxlink:ReadWord", fmt.Sprintf("station=%d address=%s count=%d", station, address, count))
	defer span.End()

	rs, err := c.read(ctx, WordRead, station, address, count)
	if err != nil || rs == nil {
		span.SetError(err)
		return nil, err
	}

	words, err := rs.Words()
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.AppendTag(string(rs.Payload))

	return words, nil
}

func (c *Client) read(ctx context.Context, command string, station byte, address string, count int) (*Message, error) {
	if count < 1 || count > MaxCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	rs, err := c.SendCommand(ctx, station, command, address, util.AppendHexByte(nil, byte(count)))
	if err != nil {
		return nil, err
	}
	if rs == nil || rs.Code != STX || len(rs.Payload) == 0 {
		return nil, nil
	}

	return rs, nil
}

// ===========================================================================
// Writes
// ===========================================================================

// Write dispatches to WriteBit for BW and WriteWord for WW.
func (c *Client) Write(ctx context.Context, command string, station byte, address string, values []uint16) (int, error) {
	switch command {
	case BitWrite:
		return c.WriteBit(ctx, station, address, values...)
	case WordWrite:
		return c.WriteWord(ctx, station, address, values...)
	}

	return -1, fmt.Errorf("%w: write with %q", ErrUnsupportedCommand, command)
}

// WriteBit sets bit devices starting at address; any nonzero value turns the
// bit on. It returns the number of values written once the controller
// acknowledges, or -1 when no acknowledgement arrived.
func (c *Client) WriteBit(ctx context.Context, station byte, address string, values ...uint16) (int, error) {
	span := c.tracer.Start("fxlink:WriteBit", fmt.Sprintf("station=%d address=%s values=%s", station, address, joinValues(values)))
	defer span.End()

	n, err := c.write(ctx, BitWrite, station, address, values, func(dst []byte, v uint16) []byte {
		if v != 0 {
			return append(dst, '1')
		}
		return append(dst, '0')
	})
	span.SetError(err)

	return n, err
}

// WriteWord sets word devices starting at address, four hex digits per
// value. It returns the number of values written once the controller
// acknowledges, or -1 when no acknowledgement arrived.
func (c *Client) WriteWord(ctx context.Context, station byte, address string, values ...uint16) (int, error) {
	span := c.tracer.Start("fxlink:WriteWord", fmt.Sprintf("station=%d address=%s values=%s", station, address, joinValues(values)))
	defer span.End()

	n, err := c.write(ctx, WordWrite, station, address, values, util.AppendHexWord)
	span.SetError(err)

	return n, err
}

func (c *Client) write(ctx context.Context, command string, station byte, address string, values []uint16,
	appendValue func([]byte, uint16) []byte,
) (int, error) {
	if len(values) < 1 || len(values) > MaxCount {
		return -1, fmt.Errorf("%w: %d values", ErrInvalidCount, len(values))
	}

	data := make([]byte, 0, 2+4*len(values))
	data = util.AppendHexByte(data, byte(len(values)))
	for _, v := range values {
		data = appendValue(data, v)
	}

	rs, err := c.SendCommand(ctx, station, command, address, data)
	if err != nil {
		return -1, err
	}
	if rs == nil || rs.Code != ACK {
		return -1, nil
	}

	return len(values), nil
}

func joinValues(values []uint16) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%04X", v)
	}

	return strings.Join(parts, ",")
}

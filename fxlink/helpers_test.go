package fxlink

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/trace"
)

// device answers requests on the remote end of a pipe. handle returns the
// raw reply bytes; nil means stay silent.
type device struct {
	conn     net.Conn
	handle   func(req *Message) []byte
	requests chan *Message
}

func (d *device) serve() {
	buf := make([]byte, 512)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return
		}

		req, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		select {
		case d.requests <- req:
		default:
		}

		if reply := d.handle(req); reply != nil {
			if _, err := d.conn.Write(reply); err != nil {
				return
			}
		}
	}
}

// newTestClient creates a client whose session talks to a simulated
// controller.
func newTestClient(t *testing.T, tracer trace.Tracer, handle func(req *Message) []byte) (*Client, *device) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	if tracer == nil {
		tracer = trace.Nop
	}

	session, err := link.NewSession("pipe", link.PortDialer(link.NewConnPort(local)),
		link.WithTimeout(150*time.Millisecond),
		link.WithPollInterval(5*time.Millisecond),
		link.WithTracer(tracer),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	client, err := NewClient(session)
	require.NoError(t, err)

	dev := &device{conn: remote, handle: handle, requests: make(chan *Message, 16)}
	go dev.serve()

	return client, dev
}

func encodeReply(t *testing.T, m *Message) []byte {
	t.Helper()

	buf, err := m.Encode()
	require.NoError(t, err)

	return buf
}

func stxReply(t *testing.T, req *Message, payload string) []byte {
	return encodeReply(t, &Message{Code: STX, Station: req.Station, PC: req.PC, Payload: []byte(payload)})
}

func ackReply(t *testing.T, req *Message) []byte {
	return encodeReply(t, &Message{Code: ACK, Station: req.Station, PC: req.PC})
}

func nakReply(t *testing.T, req *Message, code ErrorCode) []byte {
	return encodeReply(t, &Message{Code: NAK, Station: req.Station, PC: req.PC, ErrorCode: code})
}

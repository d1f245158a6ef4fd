package modbus

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/link"
)

// slave simulates a device on the remote end of a pipe. handle returns the
// raw reply; nil keeps the device silent.
type slave struct {
	mode     Mode
	conn     net.Conn
	handle   func(req *Request) []byte
	requests chan *Request
}

func (s *slave) serve() {
	buf := make([]byte, 512)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return
		}

		req, err := DecodeRequest(s.mode, buf[:n])
		if err != nil {
			continue
		}
		select {
		case s.requests <- req:
		default:
		}

		if reply := s.handle(req); reply != nil {
			if _, err := s.conn.Write(reply); err != nil {
				return
			}
		}
	}
}

func newTestClient(t *testing.T, mode Mode, handle func(req *Request) []byte, opts ...Option) (*Client, *slave) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	session, err := link.NewSession("pipe", link.PortDialer(link.NewConnPort(local)),
		link.WithTimeout(150*time.Millisecond),
		link.WithPollInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	client, err := NewClient(session, mode, opts...)
	require.NoError(t, err)

	s := &slave{mode: mode, conn: remote, handle: handle, requests: make(chan *Request, 16)}
	go s.serve()

	return client, s
}

// memory is a register/coil image answering requests like a real device.
type memory struct {
	mode      Mode
	coils     map[uint16]byte
	registers map[uint16]uint16
}

func newMemory(mode Mode) *memory {
	return &memory{mode: mode, coils: map[uint16]byte{}, registers: map[uint16]uint16{}}
}

func (m *memory) handle(req *Request) []byte {
	rs := req.CreateReply()

	switch req.Function {
	case ReadCoil, ReadDiscrete:
		count := int(binary.BigEndian.Uint16(req.Payload))
		values := make([]uint16, count)
		for i := range values {
			values[i] = uint16(m.coils[req.Address+uint16(i)])
		}
		rs.Payload = PackBits(values)
	case ReadRegister, ReadInput:
		count := int(binary.BigEndian.Uint16(req.Payload))
		for i := range count {
			rs.Payload = binary.BigEndian.AppendUint16(rs.Payload, m.registers[req.Address+uint16(i)])
		}
	case WriteCoil:
		if binary.BigEndian.Uint16(req.Payload) == CoilOn {
			m.coils[req.Address] = 1
		} else {
			m.coils[req.Address] = 0
		}
		rs.Address, rs.Payload = req.Address, req.Payload
	case WriteRegister:
		m.registers[req.Address] = binary.BigEndian.Uint16(req.Payload)
		rs.Address, rs.Payload = req.Address, req.Payload
	case WriteCoils:
		count := int(binary.BigEndian.Uint16(req.Payload))
		bits, _ := UnpackBits(req.Payload[3:], count)
		for i, b := range bits {
			m.coils[req.Address+uint16(i)] = b
		}
		rs.Address, rs.Payload = req.Address, req.Payload[:2]
	case WriteRegisters:
		words, _ := Registers(req.Payload[3:])
		for i, w := range words {
			m.registers[req.Address+uint16(i)] = w
		}
		rs.Address, rs.Payload = req.Address, req.Payload[:2]
	default:
		rs.Exception = IllegalFunction
	}

	return rs.Encode(m.mode)
}

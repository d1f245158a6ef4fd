package driver

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/fxlink"
	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/modbus"
	"github.com/arloliu/go-plclink/point"
)

// testLinkOptions keep the response timeout short.
func testLinkOptions() Option {
	return WithLinkOptions(
		link.WithTimeout(150*time.Millisecond),
		link.WithPollInterval(5*time.Millisecond),
	)
}

// bench hands out in-memory ports whose remote end is served by handle.
type bench struct {
	t      *testing.T
	dials  atomic.Int32
	handle func(frame []byte) []byte
}

func (b *bench) dialer(Params) link.Dialer {
	return func(context.Context) (link.Port, error) {
		b.dials.Add(1)

		local, remote := net.Pipe()
		b.t.Cleanup(func() {
			_ = local.Close()
			_ = remote.Close()
		})
		go b.serve(remote)

		return link.NewConnPort(local), nil
	}
}

func (b *bench) serve(conn net.Conn) {
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		if reply := b.handle(buf[:n]); reply != nil {
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}
}

// ===== FX link controller =====

// plc is an FX controller image keyed by device name ("D100", "M3").
type plc struct {
	mu  sync.Mutex
	mem map[string]uint16
	// nak lists request addresses answered with NAK.
	nak map[string]bool
	// requests counts decoded requests.
	requests atomic.Int32
}

func newPLC() *plc {
	return &plc{mem: map[string]uint16{}, nak: map[string]bool{}}
}

func (p *plc) set(name string, v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mem[name] = v
}

func (p *plc) get(name string) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mem[name]
}

func (p *plc) handle(frame []byte) []byte {
	req, err := fxlink.Decode(frame)
	if err != nil {
		return nil
	}
	p.requests.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	reply := func(m *fxlink.Message) []byte {
		m.Station, m.PC = req.Station, req.PC
		buf, err := m.Encode()
		if err != nil {
			return nil
		}

		return buf
	}

	if p.nak[req.Address] {
		return reply(&fxlink.Message{Code: fxlink.NAK, ErrorCode: fxlink.PLCError})
	}

	addr, err := point.ParseFxAddress(req.Address)
	if err != nil || len(req.Payload) < 2 {
		return reply(&fxlink.Message{Code: fxlink.NAK, ErrorCode: fxlink.CharacterError})
	}
	count64, _ := strconv.ParseUint(string(req.Payload[:2]), 16, 8)
	count := int(count64)
	name := func(i int) string { return addr.Region + strconv.Itoa(addr.Offset+i) }
	data := req.Payload[2:]

	switch req.Command {
	case fxlink.BitRead:
		out := make([]byte, count)
		for i := range out {
			out[i] = '0'
			if p.mem[name(i)] != 0 {
				out[i] = '1'
			}
		}
		return reply(&fxlink.Message{Code: fxlink.STX, Payload: out})
	case fxlink.WordRead:
		var out []byte
		for i := range count {
			out = fmt.Appendf(out, "%04X", p.mem[name(i)])
		}
		return reply(&fxlink.Message{Code: fxlink.STX, Payload: out})
	case fxlink.BitWrite:
		for i := range count {
			p.mem[name(i)] = uint16(data[i] - '0')
		}
		return reply(&fxlink.Message{Code: fxlink.ACK})
	case fxlink.WordWrite:
		for i := range count {
			v, _ := strconv.ParseUint(string(data[4*i:4*i+4]), 16, 16)
			p.mem[name(i)] = uint16(v)
		}
		return reply(&fxlink.Message{Code: fxlink.ACK})
	}

	return reply(&fxlink.Message{Code: fxlink.NAK, ErrorCode: fxlink.CharacterError})
}

func newTestFxDriver(t *testing.T, dev *plc) (*FxLinkDriver, *bench) {
	t.Helper()

	b := &bench{t: t, handle: dev.handle}
	d, err := NewFxLinkDriver(WithDialer(b.dialer), testLinkOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })

	return d, b
}

// ===== Modbus device =====

// device is a Modbus register and coil image.
type device struct {
	mode modbus.Mode

	mu        sync.Mutex
	coils     map[uint16]byte
	registers map[uint16]uint16
	functions []modbus.Function
}

func newDevice(mode modbus.Mode) *device {
	return &device{mode: mode, coils: map[uint16]byte{}, registers: map[uint16]uint16{}}
}

func (d *device) register(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.registers[addr]
}

func (d *device) coil(addr uint16) byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.coils[addr]
}

func (d *device) seen() []modbus.Function {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]modbus.Function(nil), d.functions...)
}

func (d *device) handle(frame []byte) []byte {
	req, err := modbus.DecodeRequest(d.mode, frame)
	if err != nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.functions = append(d.functions, req.Function)
	rs := req.CreateReply()

	switch req.Function {
	case modbus.ReadCoil, modbus.ReadDiscrete:
		count := int(binary.BigEndian.Uint16(req.Payload))
		values := make([]uint16, count)
		for i := range values {
			values[i] = uint16(d.coils[req.Address+uint16(i)])
		}
		rs.Payload = modbus.PackBits(values)
	case modbus.ReadRegister, modbus.ReadInput:
		count := int(binary.BigEndian.Uint16(req.Payload))
		for i := range count {
			rs.Payload = binary.BigEndian.AppendUint16(rs.Payload, d.registers[req.Address+uint16(i)])
		}
	case modbus.WriteCoil:
		d.coils[req.Address] = 0
		if binary.BigEndian.Uint16(req.Payload) == modbus.CoilOn {
			d.coils[req.Address] = 1
		}
		rs.Address, rs.Payload = req.Address, req.Payload
	case modbus.WriteRegister:
		d.registers[req.Address] = binary.BigEndian.Uint16(req.Payload)
		rs.Address, rs.Payload = req.Address, req.Payload
	case modbus.WriteCoils:
		count := int(binary.BigEndian.Uint16(req.Payload))
		bits, _ := modbus.UnpackBits(req.Payload[3:], count)
		for i, b := range bits {
			d.coils[req.Address+uint16(i)] = b
		}
		rs.Address, rs.Payload = req.Address, req.Payload[:2]
	case modbus.WriteRegisters:
		words, _ := modbus.Registers(req.Payload[3:])
		for i, w := range words {
			d.registers[req.Address+uint16(i)] = w
		}
		rs.Address, rs.Payload = req.Address, req.Payload[:2]
	default:
		rs.Exception = modbus.IllegalFunction
	}

	return rs.Encode(d.mode)
}

func newTestModbusDriver(t *testing.T, dev *device) (*ModbusDriver, *bench) {
	t.Helper()

	b := &bench{t: t, handle: dev.handle}
	d, err := NewModbusDriver(WithDialer(b.dialer), testLinkOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })

	return d, b
}

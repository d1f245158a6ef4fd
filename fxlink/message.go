package fxlink

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/arloliu/go-plclink/internal/util"
	"github.com/arloliu/go-plclink/point"
)

// ControlCode is the leading control byte of a frame.
type ControlCode byte

// Control bytes of the computer-link protocol.
const (
	STX ControlCode = 0x02 // start of a read response
	ETX ControlCode = 0x03 // end of a read response body
	EOT ControlCode = 0x04
	ENQ ControlCode = 0x05 // request
	ACK ControlCode = 0x06 // write acknowledged
	NAK ControlCode = 0x15 // error response
)

func (c ControlCode) String() string {
	switch c {
	case STX:
		return "STX"
	case ETX:
		return "ETX"
	case EOT:
		return "EOT"
	case ENQ:
		return "ENQ"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	default:
		return fmt.Sprintf("ControlCode(0x%02X)", byte(c))
	}
}

// Commands understood by the client.
const (
	BitRead   = "BR"
	WordRead  = "WR"
	BitWrite  = "BW"
	WordWrite = "WW"
)

// DefaultPC is the PC number of the local controller.
const DefaultPC byte = 0xFF

// MaxCount is the largest element count a request can carry.
const MaxCount = 0xFF

// MaxReplySize is the longest reply frame: STX, station and PC, MaxCount
// words of four hex characters, ETX and the checksum.
const MaxReplySize = 1 + 4 + 4*MaxCount + 1 + 2

const (
	addrFieldLen = 5
	// station(2) + PC(2) + command(2) + wait(1) + address(5)
	enqHeaderLen = 12
	checksumLen  = 2
)

// IsCommand reports whether cmd is one of BR, WR, BW, WW.
func IsCommand(cmd string) bool {
	switch cmd {
	case BitRead, WordRead, BitWrite, WordWrite:
		return true
	}

	return false
}

// Message is one computer-link frame.
//
// Payload keeps the ASCII characters exactly as they appear on the wire.
// For requests it is the element count (two hex digits) followed by the
// write data; for STX replies it is the read data between the header and
// ETX. Use Bits and Words to decode reply data.
type Message struct {
	Code    ControlCode
	Station byte
	PC      byte

	// Command and Address are sent with ENQ frames. Replies inherit them
	// from the request so that the payload can be interpreted.
	Command string
	Wait    byte
	Address string

	Payload []byte

	// ErrorCode is carried by NAK frames.
	ErrorCode ErrorCode

	// Checksum is the value read from the wire; ComputedChecksum is the sum
	// of the received bytes. Both are set by Encode as well.
	Checksum         byte
	ComputedChecksum byte

	reply bool
}

// NewRequest creates an ENQ frame. address accepts any FX address text and
// is normalized, e.g. "d0210" becomes "D210".
func NewRequest(station, pc byte, command, address string, payload []byte) (*Message, error) {
	if !IsCommand(command) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, command)
	}

	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}

	return &Message{
		Code:    ENQ,
		Station: station,
		PC:      pc,
		Command: command,
		Address: addr,
		Payload: payload,
	}, nil
}

// IsReply reports whether m was created by CreateReply.
func (m *Message) IsReply() bool {
	return m.reply
}

// CreateReply creates an empty reply that inherits the station, PC, command
// and address of the request.
func (m *Message) CreateReply() (*Message, error) {
	if m.reply {
		return nil, ErrReplyOfReply
	}

	return &Message{
		Station: m.Station,
		PC:      m.PC,
		Command: m.Command,
		Address: m.Address,
		reply:   true,
	}, nil
}

// DecodeReply decodes data as the reply to m. A NAK reply is returned
// together with a *ProtocolError.
func (m *Message) DecodeReply(data []byte) (*Message, error) {
	rs, err := m.CreateReply()
	if err != nil {
		return nil, err
	}

	if err := rs.decode(data); err != nil {
		return nil, err
	}

	if rs.Code == NAK {
		return rs, &ProtocolError{
			Code:    rs.ErrorCode,
			Station: rs.Station,
			Command: m.Command,
			Address: m.Address,
		}
	}

	return rs, nil
}

// ChecksumValid reports whether the received checksum matches the
// computed one. ACK and NAK frames carry no checksum.
func (m *Message) ChecksumValid() bool {
	switch m.Code {
	case ENQ, STX:
		return m.Checksum == m.ComputedChecksum
	}

	return true
}

// Bits decodes a bit-read reply: one hex character per element.
func (m *Message) Bits() ([]byte, error) {
	out := make([]byte, len(m.Payload))
	for i, c := range m.Payload {
		v, err := util.HexNibble(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		out[i] = v
	}

	return out, nil
}

// Words decodes a word-read reply: four hex characters per element,
// big-endian. A single-character payload decodes to one word.
func (m *Message) Words() ([]uint16, error) {
	if len(m.Payload) == 1 {
		v, err := util.HexNibble(m.Payload[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}

		return []uint16{uint16(v)}, nil
	}
	if len(m.Payload)%4 != 0 {
		return nil, fmt.Errorf("%w: word payload of %d characters", ErrMalformedFrame, len(m.Payload))
	}

	out := make([]uint16, len(m.Payload)/4)
	for i := range out {
		v, err := util.ParseHexWord(m.Payload[i*4 : i*4+4])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		out[i] = v
	}

	return out, nil
}

// String renders the message for logs: "WR (D210, 01)" for requests and
// "STX (0001)" for replies.
func (m *Message) String() string {
	switch m.Code {
	case ENQ:
		return fmt.Sprintf("%s (%s, %s)", m.Command, m.Address, m.Payload)
	case NAK:
		return fmt.Sprintf("%s (%02X)", m.Code, byte(m.ErrorCode))
	default:
		return fmt.Sprintf("%s (%s)", m.Code, m.Payload)
	}
}

// --- Wire encoding ---

// Encode serializes the message to its wire format.
func (m *Message) Encode() ([]byte, error) {
	buf := make([]byte, 0, 1+enqHeaderLen+len(m.Payload)+1+checksumLen)
	buf = append(buf, byte(m.Code))
	buf = util.AppendHexByte(buf, m.Station)
	buf = util.AppendHexByte(buf, m.PC)

	switch m.Code {
	case ENQ:
		if !IsCommand(m.Command) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, m.Command)
		}
		field, err := wireAddress(m.Address)
		if err != nil {
			return nil, err
		}
		if m.Wait > 0x0F {
			return nil, fmt.Errorf("%w: wait %d exceeds one hex digit", ErrMalformedFrame, m.Wait)
		}
		buf = append(buf, m.Command...)
		buf = append(buf, util.HexDigit(m.Wait))
		buf = append(buf, field...)
		buf = append(buf, m.Payload...)
		m.ComputedChecksum = Checksum(buf[1:])
		m.Checksum = m.ComputedChecksum
		buf = util.AppendHexByte(buf, m.Checksum)
	case STX:
		buf = append(buf, m.Payload...)
		buf = append(buf, byte(ETX))
		m.ComputedChecksum = Checksum(buf[1:])
		m.Checksum = m.ComputedChecksum
		buf = util.AppendHexByte(buf, m.Checksum)
	case ACK:
	case NAK:
		buf = util.AppendHexByte(buf, byte(m.ErrorCode))
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrMalformedFrame, m.Code)
	}

	return buf, nil
}

// Decode parses one frame of any kind. It is used by simulators and tests;
// clients decode replies with DecodeReply so that the command is known.
func Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := m.decode(data); err != nil {
		return nil, err
	}
	m.reply = m.Code != ENQ

	return m, nil
}

func (m *Message) decode(data []byte) error {
	// control + station(2) + PC(2)
	if len(data) < 5 {
		return fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(data))
	}

	station, err := util.ParseHexByte(data[1:3])
	if err != nil {
		return fmt.Errorf("%w: station: %w", ErrMalformedFrame, err)
	}
	pc, err := util.ParseHexByte(data[3:5])
	if err != nil {
		return fmt.Errorf("%w: PC: %w", ErrMalformedFrame, err)
	}

	m.Code = ControlCode(data[0])
	m.Station = station
	m.PC = pc

	switch m.Code {
	case ENQ:
		return m.decodeRequest(data)
	case STX:
		return m.decodeData(data)
	case ACK:
		return nil
	case NAK:
		if len(data) < 7 {
			return fmt.Errorf("%w: NAK without error code", ErrMalformedFrame)
		}
		code, err := util.ParseHexByte(data[5:7])
		if err != nil {
			return fmt.Errorf("%w: error code: %w", ErrMalformedFrame, err)
		}
		m.ErrorCode = ErrorCode(code)

		return nil
	}

	return fmt.Errorf("%w: unexpected control byte 0x%02X", ErrMalformedFrame, data[0])
}

func (m *Message) decodeRequest(data []byte) error {
	if len(data) < 1+enqHeaderLen+checksumLen {
		return fmt.Errorf("%w: short request of %d bytes", ErrMalformedFrame, len(data))
	}

	wait, err := util.HexNibble(data[7])
	if err != nil {
		return fmt.Errorf("%w: wait: %w", ErrMalformedFrame, err)
	}
	addr, err := normalizeAddress(string(data[8 : 8+addrFieldLen]))
	if err != nil {
		return err
	}

	end := len(data) - checksumLen
	sum, err := util.ParseHexByte(data[end:])
	if err != nil {
		return fmt.Errorf("%w: checksum: %w", ErrMalformedFrame, err)
	}

	m.Command = string(data[5:7])
	m.Wait = wait
	m.Address = addr
	m.Payload = util.CloneSlice(data[1+enqHeaderLen:end], 0)
	m.Checksum = sum
	m.ComputedChecksum = Checksum(data[1:end])

	return nil
}

func (m *Message) decodeData(data []byte) error {
	etx := bytes.IndexByte(data[5:], byte(ETX))
	if etx < 0 {
		return fmt.Errorf("%w: missing ETX", ErrMalformedFrame)
	}
	etx += 5

	if len(data) < etx+1+checksumLen {
		return fmt.Errorf("%w: missing checksum", ErrMalformedFrame)
	}
	sum, err := util.ParseHexByte(data[etx+1 : etx+1+checksumLen])
	if err != nil {
		return fmt.Errorf("%w: checksum: %w", ErrMalformedFrame, err)
	}

	m.Payload = util.CloneSlice(data[5:etx], 0)
	m.Checksum = sum
	m.ComputedChecksum = Checksum(data[1 : etx+1])

	return nil
}

// Checksum returns the sum of data modulo 256. Frames sum every byte after
// the control byte: up to the payload end for requests, up to and
// including ETX for read responses.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}

	return sum
}

// frameComplete reports whether buf holds a whole reply frame.
func frameComplete(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	switch ControlCode(buf[0]) {
	case ACK:
		return len(buf) >= 5
	case NAK:
		return len(buf) >= 7
	case STX:
		etx := bytes.IndexByte(buf[1:], byte(ETX))
		return etx >= 0 && len(buf) >= 1+etx+1+checksumLen
	}

	return false
}

// --- Addresses ---

func normalizeAddress(address string) (string, error) {
	a, err := point.ParseFxAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	return a.Region + strconv.Itoa(a.Offset), nil
}

// wireAddress renders the region followed by the zero-padded decimal
// element number, five characters in total ("D0210").
func wireAddress(address string) ([]byte, error) {
	a, err := point.ParseFxAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	width := addrFieldLen - len(a.Region)
	num := strconv.Itoa(a.Offset)
	if width < 1 || len(num) > width {
		return nil, fmt.Errorf("%w: %q does not fit the %d-character address field", ErrInvalidAddress, address, addrFieldLen)
	}

	out := make([]byte, 0, addrFieldLen)
	out = append(out, a.Region...)
	for i := len(num); i < width; i++ {
		out = append(out, '0')
	}

	return append(out, num...), nil
}

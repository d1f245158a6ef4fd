package modbus

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/arloliu/go-plclink/internal/util"
)

// Mode selects the framing of a Modbus link.
type Mode uint8

const (
	// RTU frames carry a trailing CRC16 and travel over serial lines.
	RTU Mode = iota
	// TCP frames carry an MBAP header and no CRC.
	TCP
)

func (m Mode) String() string {
	switch m {
	case RTU:
		return "rtu"
	case TCP:
		return "tcp"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses "rtu" or "tcp".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rtu", "":
		return RTU, nil
	case "tcp":
		return TCP, nil
	}

	return 0, fmt.Errorf("modbus: unknown mode %q", s)
}

const (
	mbapLen = 6
	crcLen  = 2

	// MaxADUSize is the longest Modbus frame on either framing.
	MaxADUSize = 260

	// Shortest replies: an exception frame.
	minRTUReply = 5
	minTCPReply = mbapLen + 3
)

// Request is one Modbus request.
//
// Payload follows the address: the quantity for reads, the value for single
// writes and quantity + byte count + data for multiple writes.
type Request struct {
	// TransactionID and ProtocolID are only used by TCP framing.
	TransactionID uint16
	ProtocolID    uint16

	Host     byte
	Function Function
	Address  uint16
	Payload  []byte
}

func (r *Request) String() string {
	return fmt.Sprintf("%s (%d, %s)", r.Function, r.Address, util.HexDump(r.Payload))
}

// Encode serializes the request for mode.
func (r *Request) Encode(mode Mode) []byte {
	pdu := make([]byte, 0, 4+len(r.Payload))
	pdu = append(pdu, r.Host, byte(r.Function))
	pdu = binary.BigEndian.AppendUint16(pdu, r.Address)
	pdu = append(pdu, r.Payload...)

	return frameADU(mode, r.TransactionID, r.ProtocolID, pdu)
}

// DecodeRequest parses a request frame. It serves device simulators.
func DecodeRequest(mode Mode, data []byte) (*Request, error) {
	req := &Request{}

	pdu, err := unframeADU(mode, data, &req.TransactionID, &req.ProtocolID, nil)
	if err != nil {
		return nil, err
	}
	if len(pdu) < 4 {
		return nil, fmt.Errorf("%w: request of %d bytes", ErrMalformedFrame, len(pdu))
	}

	req.Host = pdu[0]
	req.Function = Function(pdu[1])
	req.Address = binary.BigEndian.Uint16(pdu[2:4])
	req.Payload = util.CloneSlice(pdu[4:], 0)

	return req, nil
}

// Reply is one Modbus response.
//
// For read functions Payload holds the data bytes after the byte count. For
// write functions Address and Payload hold the echoed address and
// value/quantity. Exception replies set Exception.
type Reply struct {
	TransactionID uint16
	ProtocolID    uint16

	Host      byte
	Function  Function
	Address   uint16
	Payload   []byte
	Exception ExceptionCode

	// CRC is read from the wire, ComputedCRC calculated over the frame.
	// Both are zero for TCP.
	CRC         uint16
	ComputedCRC uint16
}

// IsException reports whether the reply is an exception.
func (r *Reply) IsException() bool {
	return r.Exception != 0
}

// CRCValid reports whether the received CRC matches.
func (r *Reply) CRCValid() bool {
	return r.CRC == r.ComputedCRC
}

// Err returns an *ExceptionError for exception replies.
func (r *Reply) Err() error {
	if !r.IsException() {
		return nil
	}

	return &ExceptionError{Host: r.Host, Function: r.Function, Code: r.Exception}
}

func (r *Reply) String() string {
	if r.IsException() {
		return fmt.Sprintf("%s exception %s", r.Function, r.Exception)
	}

	return fmt.Sprintf("%s %s", r.Function, util.HexDump(r.Payload))
}

// CreateReply creates an empty reply with the host, function and
// transaction of r.
func (r *Request) CreateReply() *Reply {
	return &Reply{
		TransactionID: r.TransactionID,
		ProtocolID:    r.ProtocolID,
		Host:          r.Host,
		Function:      r.Function,
	}
}

// Encode serializes the reply for mode.
func (r *Reply) Encode(mode Mode) []byte {
	pdu := make([]byte, 0, 3+len(r.Payload))

	switch {
	case r.IsException():
		pdu = append(pdu, r.Host, byte(r.Function)|exceptionFlag, byte(r.Exception))
	case r.Function.IsRead():
		pdu = append(pdu, r.Host, byte(r.Function), byte(len(r.Payload)))
		pdu = append(pdu, r.Payload...)
	default:
		pdu = append(pdu, r.Host, byte(r.Function))
		pdu = binary.BigEndian.AppendUint16(pdu, r.Address)
		pdu = append(pdu, r.Payload...)
	}

	return frameADU(mode, r.TransactionID, r.ProtocolID, pdu)
}

// DecodeReply parses a reply frame. A CRC mismatch is not an error; check
// CRCValid.
func DecodeReply(mode Mode, data []byte) (*Reply, error) {
	rs := &Reply{}

	if mode == RTU {
		n := rtuReplyLength(data)
		if n == 0 || len(data) < n {
			return nil, fmt.Errorf("%w: incomplete RTU reply of %d bytes", ErrMalformedFrame, len(data))
		}
		data = data[:n]
	}

	pdu, err := unframeADU(mode, data, &rs.TransactionID, &rs.ProtocolID, rs)
	if err != nil {
		return nil, err
	}
	if len(pdu) < 3 {
		return nil, fmt.Errorf("%w: reply of %d bytes", ErrMalformedFrame, len(pdu))
	}

	rs.Host = pdu[0]
	fn := pdu[1]
	body := pdu[2:]

	if fn&exceptionFlag != 0 {
		rs.Function = Function(fn &^ exceptionFlag)
		rs.Exception = ExceptionCode(body[0])

		return rs, nil
	}

	rs.Function = Function(fn)
	switch {
	case rs.Function.IsRead():
		count := int(body[0])
		if len(body) < 1+count {
			return nil, fmt.Errorf("%w: byte count %d exceeds %d data bytes", ErrMalformedFrame, count, len(body)-1)
		}
		rs.Payload = util.CloneSlice(body[1:1+count], 0)
	case rs.Function.IsWrite():
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: write echo of %d bytes", ErrMalformedFrame, len(body))
		}
		rs.Address = binary.BigEndian.Uint16(body[0:2])
		rs.Payload = util.CloneSlice(body[2:4], 0)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFunction, rs.Function)
	}

	return rs, nil
}

// --- Application data units ---

func frameADU(mode Mode, tid, pid uint16, pdu []byte) []byte {
	if mode == TCP {
		adu := make([]byte, 0, mbapLen+len(pdu))
		adu = binary.BigEndian.AppendUint16(adu, tid)
		adu = binary.BigEndian.AppendUint16(adu, pid)
		adu = binary.BigEndian.AppendUint16(adu, uint16(len(pdu))) //nolint:gosec // pdu is at most 256 bytes
		return append(adu, pdu...)
	}

	adu := make([]byte, 0, len(pdu)+crcLen)
	adu = append(adu, pdu...)

	return appendCRC(adu, CRC16(pdu))
}

// unframeADU strips the MBAP header or the CRC and returns the PDU. When rs
// is not nil the CRC fields of rs are filled.
func unframeADU(mode Mode, data []byte, tid, pid *uint16, rs *Reply) ([]byte, error) {
	if mode == TCP {
		if len(data) < mbapLen+2 {
			return nil, fmt.Errorf("%w: TCP frame of %d bytes", ErrMalformedFrame, len(data))
		}
		n := int(binary.BigEndian.Uint16(data[4:6]))
		if n < 2 || len(data) < mbapLen+n {
			return nil, fmt.Errorf("%w: MBAP length %d, %d bytes follow", ErrMalformedFrame, n, len(data)-mbapLen)
		}
		*tid = binary.BigEndian.Uint16(data[0:2])
		*pid = binary.BigEndian.Uint16(data[2:4])

		return data[mbapLen : mbapLen+n], nil
	}

	if len(data) < 2+crcLen {
		return nil, fmt.Errorf("%w: RTU frame of %d bytes", ErrMalformedFrame, len(data))
	}
	end := len(data) - crcLen
	if rs != nil {
		rs.CRC = binary.LittleEndian.Uint16(data[end:])
		rs.ComputedCRC = CRC16(data[:end])
	}

	return data[:end], nil
}

// rtuReplyLength returns the expected size of the RTU reply starting in
// buf, or 0 while it cannot be determined yet.
func rtuReplyLength(buf []byte) int {
	if len(buf) < 2 {
		return 0
	}

	fn := buf[1]
	if fn&exceptionFlag != 0 {
		return minRTUReply
	}

	switch f := Function(fn); {
	case f.IsRead():
		if len(buf) < 3 {
			return 0
		}
		return 3 + int(buf[2]) + crcLen
	case f.IsWrite():
		return 6 + crcLen
	}

	return 0
}

// replyComplete returns the frame-completion predicate for mode.
func replyComplete(mode Mode) func([]byte) bool {
	if mode == TCP {
		return func(buf []byte) bool {
			if len(buf) < mbapLen {
				return false
			}
			return len(buf) >= mbapLen+int(binary.BigEndian.Uint16(buf[4:6]))
		}
	}

	return func(buf []byte) bool {
		n := rtuReplyLength(buf)
		return n > 0 && len(buf) >= n
	}
}

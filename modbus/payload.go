package modbus

import (
	"encoding/binary"
	"fmt"
)

// Quantity limits per request.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

// Single coil values.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// QuantityPayload encodes a read quantity.
func QuantityPayload(fn Function, count int) ([]byte, error) {
	limit := MaxReadRegisters
	if fn.IsBit() {
		limit = MaxReadBits
	}
	if count < 1 || count > limit {
		return nil, fmt.Errorf("%w: %s of %d elements, limit %d", ErrInvalidQuantity, fn, count, limit)
	}

	return binary.BigEndian.AppendUint16(nil, uint16(count)), nil //nolint:gosec // bounded above
}

// SingleCoilPayload encodes a single coil write; any nonzero value is ON.
func SingleCoilPayload(value uint16) []byte {
	if value != 0 {
		return binary.BigEndian.AppendUint16(nil, CoilOn)
	}

	return binary.BigEndian.AppendUint16(nil, CoilOff)
}

// SingleRegisterPayload encodes a single register write.
func SingleRegisterPayload(value uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, value)
}

// CoilsPayload encodes a multiple coil write: quantity, byte count and the
// coils packed LSB first. Any nonzero value is ON.
func CoilsPayload(values []uint16) ([]byte, error) {
	if len(values) < 1 || len(values) > MaxWriteBits {
		return nil, fmt.Errorf("%w: %d coils, limit %d", ErrInvalidQuantity, len(values), MaxWriteBits)
	}

	packed := PackBits(values)
	out := make([]byte, 0, 3+len(packed))
	out = binary.BigEndian.AppendUint16(out, uint16(len(values))) //nolint:gosec // bounded above
	out = append(out, byte(len(packed)))

	return append(out, packed...), nil
}

// RegistersPayload encodes a multiple register write: quantity, byte count
// and the big-endian register values.
func RegistersPayload(values []uint16) ([]byte, error) {
	if len(values) < 1 || len(values) > MaxWriteRegisters {
		return nil, fmt.Errorf("%w: %d registers, limit %d", ErrInvalidQuantity, len(values), MaxWriteRegisters)
	}

	out := make([]byte, 0, 3+2*len(values))
	out = binary.BigEndian.AppendUint16(out, uint16(len(values))) //nolint:gosec // bounded above
	out = append(out, byte(2*len(values)))
	for _, v := range values {
		out = binary.BigEndian.AppendUint16(out, v)
	}

	return out, nil
}

// PackBits packs values into bytes, LSB first; nonzero values set the bit.
func PackBits(values []uint16) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v != 0 {
			out[i/8] |= 1 << (i % 8)
		}
	}

	return out
}

// UnpackBits expands count bits from packed (LSB first) into one 0/1 byte
// per element.
func UnpackBits(packed []byte, count int) ([]byte, error) {
	if len(packed)*8 < count {
		return nil, fmt.Errorf("%w: %d data bytes hold fewer than %d bits", ErrMalformedFrame, len(packed), count)
	}

	out := make([]byte, count)
	for i := range out {
		out[i] = packed[i/8] >> (i % 8) & 1
	}

	return out, nil
}

// Registers decodes big-endian register values.
func Registers(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd register data length %d", ErrMalformedFrame, len(data))
	}

	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}

	return out, nil
}

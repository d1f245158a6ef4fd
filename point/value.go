package point

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType is the closed set of value encodings a point can use.
type ValueType uint8

const (
	Bool ValueType = iota + 1
	I16
	U16
	I32
	U32
	I64
	U64
	F32
	F64
)

var typeNames = map[ValueType]string{
	Bool: "bool",
	I16:  "int16",
	U16:  "uint16",
	I32:  "int32",
	U32:  "uint32",
	I64:  "int64",
	U64:  "uint64",
	F32:  "float32",
	F64:  "float64",
}

// typeAliases maps declared type names onto value types.
var typeAliases = map[string]ValueType{
	"bool": Bool, "boolean": Bool, "bit": Bool,

	"short": I16, "int16": I16,
	"ushort": U16, "uint16": U16, "word": U16,
	"byte": U16, "sbyte": U16, "uint8": U16, "int8": U16,

	"int": I32, "int32": I32, "dint": I32,
	"uint": U32, "uint32": U32, "dword": U32,

	"long": I64, "int64": I64,
	"ulong": U64, "uint64": U64,

	"float": F32, "single": F32, "float32": F32, "real": F32,
	"double": F64, "decimal": F64, "float64": F64,
}

func (t ValueType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// Registers returns the number of 16-bit words the type occupies.
func (t ValueType) Registers() int {
	switch t {
	case I32, U32, F32:
		return 2
	case I64, U64, F64:
		return 4
	default:
		return 1
	}
}

// ParseValueType resolves a declared type name. Names are case-insensitive.
func ParseValueType(name string) (ValueType, error) {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Resolve returns the value type of p. Points in bit regions are always
// Bool. Word points without a declared type are derived from Length:
// 4 bytes as U32, 8 bytes as U64, anything else as U16.
func Resolve(p Point, bitRegion bool) (ValueType, error) {
	if bitRegion {
		return Bool, nil
	}

	if strings.TrimSpace(p.Type) != "" {
		return ParseValueType(p.Type)
	}

	switch p.Length {
	case 4:
		return U32, nil
	case 8:
		return U64, nil
	default:
		return U16, nil
	}
}

// Count returns how many elements p covers: one for bit regions, otherwise
// Length/2 words, never fewer than the register count of t.
func Count(p Point, t ValueType, bitRegion bool) int {
	if bitRegion {
		return 1
	}

	return max(p.Length/2, t.Registers())
}

// FromBits converts a bit element (0/1) into a bool.
func FromBits(bits []byte) (bool, error) {
	if len(bits) == 0 {
		return false, ErrShortData
	}

	return bits[0] != 0, nil
}

// FromRegisters decodes words into a Go value of type t. Multi-word values
// are big-endian, high word first.
func FromRegisters(t ValueType, words []uint16) (any, error) {
	if len(words) < t.Registers() {
		return nil, fmt.Errorf("%w: %s needs %d words, got %d", ErrShortData, t, t.Registers(), len(words))
	}

	switch t {
	case Bool:
		return words[0] != 0, nil
	case I16:
		return int16(words[0]), nil
	case U16:
		return words[0], nil
	case I32:
		return int32(join32(words)), nil
	case U32:
		return join32(words), nil
	case F32:
		return math.Float32frombits(join32(words)), nil
	case I64:
		return int64(join64(words)), nil
	case U64:
		return join64(words), nil
	case F64:
		return math.Float64frombits(join64(words)), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

func join32(w []uint16) uint32 {
	return uint32(w[0])<<16 | uint32(w[1])
}

func join64(w []uint16) uint64 {
	return uint64(w[0])<<48 | uint64(w[1])<<32 | uint64(w[2])<<16 | uint64(w[3])
}

func split32(v uint32) []uint16 {
	return []uint16{uint16(v >> 16), uint16(v)}
}

func split64(v uint64) []uint16 {
	return []uint16{uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v)}
}

// Coil values used for boolean writes.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// ToRegisters encodes v as words for type t. Booleans become CoilOn /
// CoilOff. Floats are stored as their IEEE-754 bit pattern. A []byte value
// is packed two bytes per word regardless of t.
func ToRegisters(t ValueType, v any) ([]uint16, error) {
	if raw, ok := v.([]byte); ok {
		return BytesToRegisters(raw), nil
	}

	switch t {
	case Bool:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return []uint16{CoilOn}, nil
		}
		return []uint16{CoilOff}, nil
	case I16, U16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return []uint16{uint16(n)}, nil
	case I32, U32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return split32(uint32(n)), nil
	case I64, U64:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return split64(uint64(n)), nil
	case F32:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return split32(math.Float32bits(float32(f))), nil
	case F64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return split64(math.Float64bits(f)), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// BytesToRegisters packs b big-endian, two bytes per word. An odd trailing
// byte becomes the high byte of the last word.
func BytesToRegisters(b []byte) []uint16 {
	words := make([]uint16, (len(b)+1)/2)
	for i := range words {
		hi := uint16(b[2*i]) << 8
		if 2*i+1 < len(b) {
			words[i] = hi | uint16(b[2*i+1])
		} else {
			words[i] = hi
		}
	}

	return words
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a bool", ErrUnsupported, x)
		}
		return b, nil
	}

	n, err := toInt64(v)
	if err != nil {
		return false, err
	}

	return n != 0, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return n, nil
		}
		if n, err := strconv.ParseUint(s, 0, 64); err == nil {
			return int64(n), nil
		}
		return 0, fmt.Errorf("%w: %q is not an integer", ErrUnsupported, x)
	}

	return 0, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrUnsupported, x)
		}
		return f, nil
	}

	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}

	return float64(n), nil
}

package point

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Address is a parsed point address.
type Address struct {
	// Region is the memory region code, e.g. "D", "M", "X", "Y".
	// Modbus addresses have no region; the node's function code selects it.
	Region string
	// Offset is the element number inside the region.
	Offset int
	// Bit is the ":N" suffix, or -1. It never reaches the wire.
	Bit int
}

func (a Address) String() string {
	s := a.Region + strconv.Itoa(a.Offset)
	if a.Bit >= 0 {
		s += ":" + strconv.Itoa(a.Bit)
	}

	return s
}

// Address parsing patterns.
var (
	// Pattern: D100, M103:1, Y0, x7
	fxAddrPattern = regexp.MustCompile(`^([A-Z]+)(\d+)$`)
	// Pattern: 100, 0x0064
	modbusAddrPattern = regexp.MustCompile(`^(0X[0-9A-F]+|\d+)$`)
)

// bitRegions are FX regions addressed one bit per element.
var bitRegions = map[string]bool{
	"X": true,
	"Y": true,
	"M": true,
	"S": true,
}

// IsBitRegion reports whether region holds single-bit elements.
func IsBitRegion(region string) bool {
	return bitRegions[strings.ToUpper(region)]
}

// splitBit strips the optional ":N" suffix.
func splitBit(s string) (string, int, error) {
	s = strings.TrimSpace(s)

	head, tail, found := strings.Cut(s, ":")
	if !found {
		return s, -1, nil
	}

	bit, err := strconv.Atoi(tail)
	if err != nil || bit < 0 {
		return "", -1, fmt.Errorf("%w: bad bit suffix in %q", ErrInvalidAddress, s)
	}

	return head, bit, nil
}

// ParseFxAddress parses an FX address: region letters followed by a decimal
// element number, optionally suffixed with ":bit".
//
//	ParseFxAddress("D210")   // {D 210 -1}
//	ParseFxAddress("M103:1") // {M 103 1}
//	ParseFxAddress("D0210")  // {D 210 -1}
func ParseFxAddress(s string) (Address, error) {
	head, bit, err := splitBit(s)
	if err != nil {
		return Address{}, err
	}

	m := fxAddrPattern.FindStringSubmatch(strings.ToUpper(head))
	if m == nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	offset, err := strconv.Atoi(m[2])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}

	return Address{Region: m[1], Offset: offset, Bit: bit}, nil
}

// ParseModbusAddress parses a Modbus register or coil number: decimal, or
// hexadecimal with a "0x" prefix, optionally suffixed with ":bit".
func ParseModbusAddress(s string) (Address, error) {
	head, bit, err := splitBit(s)
	if err != nil {
		return Address{}, err
	}

	head = strings.ToUpper(head)
	if !modbusAddrPattern.MatchString(head) {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	var v uint64
	if hex, ok := strings.CutPrefix(head, "0X"); ok {
		v, err = strconv.ParseUint(hex, 16, 16)
	} else {
		v, err = strconv.ParseUint(head, 10, 16)
	}
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q out of range", ErrInvalidAddress, s)
	}

	return Address{Offset: int(v), Bit: bit}, nil
}

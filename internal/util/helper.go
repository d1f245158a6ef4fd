// Package util holds small helpers shared by the protocol packages.
package util

import "fmt"

const hexDigits = "0123456789ABCDEF"

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// HexDigit returns the uppercase hex character of the low nibble of v.
func HexDigit(v byte) byte {
	return hexDigits[v&0x0F]
}

// AppendHexByte appends b as two uppercase hex characters.
func AppendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
}

// AppendHexWord appends v as four uppercase hex characters, high nibble first.
func AppendHexWord(dst []byte, v uint16) []byte {
	dst = AppendHexByte(dst, byte(v>>8))
	return AppendHexByte(dst, byte(v))
}

// HexNibble decodes one ASCII hex character. Lowercase is accepted.
func HexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	}

	return 0, fmt.Errorf("invalid hex character %q", c)
}

// ParseHexByte decodes two ASCII hex characters.
func ParseHexByte(s []byte) (byte, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("short hex byte %q", s)
	}
	hi, err := HexNibble(s[0])
	if err != nil {
		return 0, err
	}
	lo, err := HexNibble(s[1])
	if err != nil {
		return 0, err
	}

	return hi<<4 | lo, nil
}

// ParseHexWord decodes four ASCII hex characters as a big-endian uint16.
func ParseHexWord(s []byte) (uint16, error) {
	if len(s) < 4 {
		return 0, fmt.Errorf("short hex word %q", s)
	}
	hi, err := ParseHexByte(s[0:2])
	if err != nil {
		return 0, err
	}
	lo, err := ParseHexByte(s[2:4])
	if err != nil {
		return 0, err
	}

	return uint16(hi)<<8 | uint16(lo), nil
}

// HexDump renders data as "05-30-35" for log and trace tags.
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	out := make([]byte, 0, len(data)*3-1)
	for i, b := range data {
		if i > 0 {
			out = append(out, '-')
		}
		out = AppendHexByte(out, b)
	}

	return string(out)
}

package modbus

import (
	"fmt"
	"strconv"
	"strings"
)

// Function is a Modbus function code.
type Function byte

// Function codes.
const (
	ReadCoil                   Function = 1  // read coils
	ReadDiscrete               Function = 2  // read discrete inputs
	ReadRegister               Function = 3  // read holding registers
	ReadInput                  Function = 4  // read input registers
	WriteCoil                  Function = 5  // write single coil
	WriteRegister              Function = 6  // write single holding register
	Diagnostics                Function = 8  // not supported
	WriteCoils                 Function = 15 // write multiple coils
	WriteRegisters             Function = 16 // write multiple holding registers
	WriteFileRecord            Function = 21 // not supported
	ReadWriteMultipleRegisters Function = 23 // not supported
)

// exceptionFlag is set on the function code of an exception reply.
const exceptionFlag = 0x80

var functionNames = map[Function]string{
	ReadCoil:                   "ReadCoil",
	ReadDiscrete:               "ReadDiscrete",
	ReadRegister:               "ReadRegister",
	ReadInput:                  "ReadInput",
	WriteCoil:                  "WriteCoil",
	WriteRegister:              "WriteRegister",
	Diagnostics:                "Diagnostics",
	WriteCoils:                 "WriteCoils",
	WriteRegisters:             "WriteRegisters",
	WriteFileRecord:            "WriteFileRecord",
	ReadWriteMultipleRegisters: "ReadWriteMultipleRegisters",
}

func (f Function) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}

	return fmt.Sprintf("Function(%d)", byte(f))
}

// ParseFunction accepts a function name (case-insensitive) or its number.
func ParseFunction(s string) (Function, error) {
	s = strings.TrimSpace(s)
	for f, name := range functionNames {
		if strings.EqualFold(name, s) {
			return f, nil
		}
	}

	if n, err := strconv.Atoi(s); err == nil && n > 0 && n < exceptionFlag {
		return Function(n), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFunction, s)
}

// IsRead reports whether f reads coils, inputs or registers.
func (f Function) IsRead() bool {
	switch f {
	case ReadCoil, ReadDiscrete, ReadRegister, ReadInput:
		return true
	}

	return false
}

// IsWrite reports whether f is one of the supported write functions.
func (f Function) IsWrite() bool {
	switch f {
	case WriteCoil, WriteRegister, WriteCoils, WriteRegisters:
		return true
	}

	return false
}

// IsBit reports whether f addresses single-bit elements.
func (f Function) IsBit() bool {
	switch f {
	case ReadCoil, ReadDiscrete, WriteCoil, WriteCoils:
		return true
	}

	return false
}

// Supported reports whether the client implements f.
func (f Function) Supported() bool {
	return f.IsRead() || f.IsWrite()
}

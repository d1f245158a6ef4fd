package modbus

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFunction = errors.New("modbus: unsupported function")
	ErrMalformedFrame      = errors.New("modbus: malformed frame")
	ErrCRCMismatch         = errors.New("modbus: CRC mismatch")
	ErrTransactionMismatch = errors.New("modbus: transaction id mismatch")
	ErrUnexpectedReply     = errors.New("modbus: reply does not match request")
	ErrInvalidQuantity     = errors.New("modbus: quantity out of range")

	// ErrException matches every *ExceptionError.
	ErrException = errors.New("modbus: exception reply")
)

// ExceptionCode is the code carried by an exception reply.
type ExceptionCode byte

// Exception codes.
const (
	IllegalFunction     ExceptionCode = 0x01
	IllegalDataAddress  ExceptionCode = 0x02
	IllegalDataValue    ExceptionCode = 0x03
	ServerDeviceFailure ExceptionCode = 0x04
	Acknowledge         ExceptionCode = 0x05
	ServerDeviceBusy    ExceptionCode = 0x06
	NegativeAcknowledge ExceptionCode = 0x07
	MemoryParityError   ExceptionCode = 0x08
	GatewayPathUnavail  ExceptionCode = 0x0A
	GatewayTargetFailed ExceptionCode = 0x0B
)

var exceptionNames = map[ExceptionCode]string{
	IllegalFunction:     "IllegalFunction",
	IllegalDataAddress:  "IllegalDataAddress",
	IllegalDataValue:    "IllegalDataValue",
	ServerDeviceFailure: "ServerDeviceFailure",
	Acknowledge:         "Acknowledge",
	ServerDeviceBusy:    "ServerDeviceBusy",
	NegativeAcknowledge: "NegativeAcknowledge",
	MemoryParityError:   "MemoryParityError",
	GatewayPathUnavail:  "GatewayPathUnavailable",
	GatewayTargetFailed: "GatewayTargetFailed",
}

func (c ExceptionCode) String() string {
	if name, ok := exceptionNames[c]; ok {
		return name
	}

	return fmt.Sprintf("ExceptionCode(0x%02X)", byte(c))
}

// ExceptionError is returned when the device answers with an exception.
type ExceptionError struct {
	Host     byte
	Function Function
	Code     ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %s (0x%02X) from host %d for %s", e.Code, byte(e.Code), e.Host, e.Function)
}

// Is reports whether target is ErrException.
func (e *ExceptionError) Is(target error) bool {
	return target == ErrException
}

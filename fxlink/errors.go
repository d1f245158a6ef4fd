package fxlink

import (
	"errors"
	"fmt"
)

var (
	// Codec errors.
	ErrUnsupportedCommand = errors.New("fxlink: unsupported command")
	ErrMalformedFrame     = errors.New("fxlink: malformed frame")
	ErrChecksumMismatch   = errors.New("fxlink: checksum mismatch")
	ErrInvalidCount       = errors.New("fxlink: element count out of range")
	ErrInvalidAddress     = errors.New("fxlink: invalid device address")
	ErrReplyOfReply       = errors.New("fxlink: cannot create a reply to a reply")

	// ErrNAK matches every *ProtocolError.
	ErrNAK = errors.New("fxlink: negative acknowledgement")
)

// ErrorCode is the error code carried by a NAK frame.
type ErrorCode byte

const (
	SumError           ErrorCode = 0x02 // checksum error
	ProtocolErrorCode  ErrorCode = 0x03 // protocol does not match the D8120 format
	CharacterAreaError ErrorCode = 0x06 // character area wrong or command unavailable
	CharacterError     ErrorCode = 0x07 // write data contains non-hex characters
	PLCError           ErrorCode = 0x0A // PC number not "FF" or unavailable
	PLCError2          ErrorCode = 0x10 // PC number error
	RemoteError        ErrorCode = 0x18 // remote run/stop disabled
)

// ErrorCodes lists every declared NAK error code.
var ErrorCodes = []ErrorCode{
	SumError, ProtocolErrorCode, CharacterAreaError, CharacterError, PLCError, PLCError2, RemoteError,
}

func (c ErrorCode) String() string {
	switch c {
	case SumError:
		return "SumError"
	case ProtocolErrorCode:
		return "ProtocolError"
	case CharacterAreaError:
		return "CharacterAreaError"
	case CharacterError:
		return "CharacterError"
	case PLCError:
		return "PLCError"
	case PLCError2:
		return "PLCError2"
	case RemoteError:
		return "RemoteError"
	default:
		return fmt.Sprintf("ErrorCode(0x%02X)", byte(c))
	}
}

// NetworkErrorCode is reported by N:N and multi-drop link masters.
type NetworkErrorCode byte

const (
	CommsTimeout             NetworkErrorCode = 0x01
	StationError             NetworkErrorCode = 0x02
	CommsCounterError        NetworkErrorCode = 0x03
	CommsFormatError         NetworkErrorCode = 0x04
	MasterCommsTimeout       NetworkErrorCode = 0x11
	MasterCommsFormatError   NetworkErrorCode = 0x14
	NoSlave                  NetworkErrorCode = 0x21
	StationError2            NetworkErrorCode = 0x22
	CommsCounterError2       NetworkErrorCode = 0x23
	NotReceiveCommsParameter NetworkErrorCode = 0x31
)

var networkErrorNames = map[NetworkErrorCode]string{
	CommsTimeout:             "CommsTimeout",
	StationError:             "StationError",
	CommsCounterError:        "CommsCounterError",
	CommsFormatError:         "CommsFormatError",
	MasterCommsTimeout:       "MasterCommsTimeout",
	MasterCommsFormatError:   "MasterCommsFormatError",
	NoSlave:                  "NoSlave",
	StationError2:            "StationError2",
	CommsCounterError2:       "CommsCounterError2",
	NotReceiveCommsParameter: "NotReceiveCommsParameter",
}

func (c NetworkErrorCode) String() string {
	if name, ok := networkErrorNames[c]; ok {
		return name
	}

	return fmt.Sprintf("NetworkErrorCode(0x%02X)", byte(c))
}

// ProtocolError is returned when the controller answers with NAK.
type ProtocolError struct {
	Code    ErrorCode
	Station byte
	Command string
	Address string
}

func (e *ProtocolError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("fxlink: NAK %s (0x%02X) from station %d", e.Code, byte(e.Code), e.Station)
	}

	return fmt.Sprintf("fxlink: NAK %s (0x%02X) from station %d for %s %s",
		e.Code, byte(e.Code), e.Station, e.Command, e.Address)
}

// Is reports whether target is ErrNAK.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrNAK
}

// Network interprets the code as a network error code, as reported by a
// link master on a multi-drop line.
func (e *ProtocolError) Network() (NetworkErrorCode, bool) {
	c := NetworkErrorCode(e.Code)
	_, ok := networkErrorNames[c]

	return c, ok
}

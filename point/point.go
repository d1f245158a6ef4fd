// Package point maps host-supplied point metadata onto controller memory.
//
// A Point names one logical value: an address string such as "D100",
// "M103:1" or "0x0010", a declared type ("int", "float", ...) and an
// optional byte length. The package parses addresses, resolves the declared
// type into the closed ValueType set once, and converts between Go values
// and 16-bit register words.
package point

import "errors"

// Point is one named value on a device. Points are immutable inputs; the
// engine never keeps them beyond a single read or write call.
type Point struct {
	// Name is the key of the value in read results.
	Name string `yaml:"name" json:"name"`
	// Address is the protocol address text, e.g. "D100" or "40001".
	Address string `yaml:"address" json:"address"`
	// Type is the declared value type, e.g. "short", "float", "bool".
	Type string `yaml:"type" json:"type,omitempty"`
	// Length is the value size in bytes. Zero derives it from Type.
	Length int `yaml:"length" json:"length,omitempty"`
}

var (
	ErrInvalidAddress = errors.New("point: invalid address")
	ErrUnknownType    = errors.New("point: unknown value type")
	ErrShortData      = errors.New("point: not enough register data")
	ErrUnsupported    = errors.New("point: unsupported value")
)

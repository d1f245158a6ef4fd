package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/modbus"
)

// Networks a node can reach its device through.
const (
	NetworkSerial = "serial"
	NetworkTCP    = "tcp"
)

// Default node parameters.
const (
	DefaultStation = 1
	DefaultStep    = 1
)

// Params describes one node. Nodes with the same network and endpoint share
// one session.
type Params struct {
	// Network is "serial" or "tcp". Empty selects "tcp" for Modbus TCP and
	// "serial" otherwise.
	Network string `yaml:"network"`
	// Endpoint is the serial port name or "host[:port]".
	Endpoint string `yaml:"endpoint"`
	// Serial holds the line settings; its Name defaults to Endpoint.
	Serial link.SerialConfig `yaml:"serial"`

	// Station is the FX station number or the Modbus unit id.
	Station byte `yaml:"station"`
	// Timeout is the response timeout; zero uses link.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`

	// Step, BatchSize and Delay control segment planning; see segment.Options.
	Step      int           `yaml:"step"`
	BatchSize int           `yaml:"batchSize"`
	Delay     time.Duration `yaml:"delay"`

	// Modbus only.
	Mode          modbus.Mode     `yaml:"-"`
	ReadFunction  modbus.Function `yaml:"-"`
	WriteFunction modbus.Function `yaml:"-"`
	ProtocolID    uint16          `yaml:"protocolId"`
}

func (p Params) withDefaults(isModbus bool) Params {
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	if p.Network == "" {
		if isModbus && p.Mode == modbus.TCP {
			p.Network = NetworkTCP
		} else {
			p.Network = NetworkSerial
		}
	}
	p.Network = strings.ToLower(p.Network)
	if p.Station == 0 && !isModbus {
		p.Station = DefaultStation
	}
	if p.Step <= 0 {
		p.Step = DefaultStep
	}
	if p.Serial.Name == "" {
		p.Serial.Name = p.Endpoint
	}
	if isModbus {
		if p.ReadFunction == 0 {
			p.ReadFunction = modbus.ReadRegister
		}
		if p.WriteFunction == 0 {
			p.WriteFunction = modbus.WriteRegisters
		}
	}

	return p
}

func (p Params) validate(isModbus bool) error {
	if p.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is empty", ErrInvalidParams)
	}
	if p.Network != NetworkSerial && p.Network != NetworkTCP {
		return fmt.Errorf("%w: unknown network %q", ErrInvalidParams, p.Network)
	}
	if p.Timeout < 0 || p.Delay < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidParams)
	}
	if isModbus {
		if !p.ReadFunction.IsRead() {
			return fmt.Errorf("%w: read function %s: %w", ErrInvalidParams, p.ReadFunction, modbus.ErrUnsupportedFunction)
		}
		if !p.WriteFunction.IsWrite() {
			return fmt.Errorf("%w: write function %s: %w", ErrInvalidParams, p.WriteFunction, modbus.ErrUnsupportedFunction)
		}
	}

	return nil
}

// key identifies the shared channel of the node.
func (p Params) key() string {
	return p.Network + "://" + p.Endpoint
}

// dialer builds the default dialer for p.
func (p Params) dialer(defaultPort int) link.Dialer {
	if p.Network == NetworkTCP {
		return link.TCPDialer(p.Endpoint, defaultPort, link.DefaultConnectTimeout)
	}

	return link.SerialDialer(p.Serial)
}

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults used by FX computer-link adapters.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 7
	DefaultParity   = "E"
	DefaultStopBits = "1"

	DefaultConnectTimeout = 3 * time.Second
	DefaultModbusTCPPort  = 502
)

const discardPoll = time.Millisecond

// Port is the raw byte stream a Session talks through.
type Port interface {
	io.Writer
	io.Closer
	// ReadTimeout reads whatever arrives within d. It returns 0, nil when
	// nothing arrived in time.
	ReadTimeout(p []byte, d time.Duration) (int, error)
	// Discard drops unread input.
	Discard() error
}

// Dialer opens the Port of a session. It is called lazily on the first
// round trip and again after the port was dropped because of an I/O error.
type Dialer func(ctx context.Context) (Port, error)

// --- net.Conn ---

type connPort struct {
	conn net.Conn
	buf  []byte
}

// NewConnPort wraps a stream connection (TCP socket, net.Pipe) as a Port.
func NewConnPort(conn net.Conn) Port {
	return &connPort{conn: conn, buf: make([]byte, DefaultBufferSize)}
}

func (c *connPort) Write(p []byte) (int, error) {
	for written := 0; written < len(p); {
		n, err := c.conn.Write(p[written:])
		written += n

		if err != nil {
			return written, err
		}
	}

	return len(p), nil
}

func (c *connPort) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return 0, err
	}

	n, err := c.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}

	return n, err
}

// Discard reads and drops bytes until the line is silent.
func (c *connPort) Discard() error {
	for range DefaultBufferSize {
		n, err := c.ReadTimeout(c.buf, discardPoll)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}

	return nil
}

func (c *connPort) Close() error {
	return c.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}

// TCPDialer returns a Dialer connecting to addr. A missing port defaults to
// defaultPort.
func TCPDialer(addr string, defaultPort int, connectTimeout time.Duration) Dialer {
	if _, _, err := net.SplitHostPort(addr); err != nil && defaultPort > 0 {
		addr = net.JoinHostPort(addr, fmt.Sprint(defaultPort))
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	return func(ctx context.Context) (Port, error) {
		d := net.Dialer{Timeout: connectTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("link: dial %s: %w", addr, err)
		}

		return NewConnPort(conn), nil
	}
}

// PortDialer returns a Dialer handing out an already open port. Once the
// session closes it, the dialer fails with ErrClosed.
func PortDialer(p Port) Dialer {
	used := false

	return func(context.Context) (Port, error) {
		if used {
			return nil, ErrClosed
		}
		used = true

		return p, nil
	}
}

// --- serial ---

// SerialConfig describes a serial line.
type SerialConfig struct {
	// Name is the port name, e.g. "/dev/ttyUSB0" or "COM1".
	Name string `yaml:"name"`
	// BaudRate defaults to 9600.
	BaudRate int `yaml:"baudRate"`
	// DataBits defaults to 7.
	DataBits int `yaml:"dataBits"`
	// Parity is one of "N", "E", "O", "M", "S" (or the full word). Defaults to "E".
	Parity string `yaml:"parity"`
	// StopBits is "1", "1.5" or "2". Defaults to "1".
	StopBits string `yaml:"stopBits"`
}

func (sc SerialConfig) withDefaults() SerialConfig {
	if sc.BaudRate <= 0 {
		sc.BaudRate = DefaultBaudRate
	}
	if sc.DataBits <= 0 {
		sc.DataBits = DefaultDataBits
	}
	if sc.Parity == "" {
		sc.Parity = DefaultParity
	}
	if sc.StopBits == "" {
		sc.StopBits = DefaultStopBits
	}

	return sc
}

// Mode converts the configuration into a serial.Mode, applying defaults.
func (sc SerialConfig) Mode() (*serial.Mode, error) {
	sc = sc.withDefaults()

	if sc.DataBits < 5 || sc.DataBits > 8 {
		return nil, fmt.Errorf("link: data bits %d out of range [5, 8]", sc.DataBits)
	}

	mode := &serial.Mode{BaudRate: sc.BaudRate, DataBits: sc.DataBits}

	switch strings.ToUpper(sc.Parity) {
	case "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	case "M", "MARK":
		mode.Parity = serial.MarkParity
	case "S", "SPACE":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("link: unknown parity %q", sc.Parity)
	}

	switch sc.StopBits {
	case "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("link: unknown stop bits %q", sc.StopBits)
	}

	return mode, nil
}

type serialPort struct {
	port serial.Port
}

func (s *serialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialPort) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(d); err != nil {
		return 0, err
	}

	return s.port.Read(p)
}

func (s *serialPort) Discard() error {
	return s.port.ResetInputBuffer()
}

func (s *serialPort) Close() error {
	return s.port.Close()
}

// SerialDialer returns a Dialer opening the serial port described by sc.
func SerialDialer(sc SerialConfig) Dialer {
	return func(ctx context.Context) (Port, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sc.Name == "" {
			return nil, errors.New("link: serial port name is empty")
		}

		mode, err := sc.Mode()
		if err != nil {
			return nil, err
		}

		p, err := serial.Open(sc.Name, mode)
		if err != nil {
			return nil, fmt.Errorf("link: open serial port %s: %w", sc.Name, err)
		}

		return &serialPort{port: p}, nil
	}
}

package driver

import (
	"context"
	"fmt"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/modbus"
	"github.com/arloliu/go-plclink/point"
	"github.com/arloliu/go-plclink/segment"
)

// ModbusDriver reads and writes Modbus RTU and TCP devices.
type ModbusDriver struct {
	cfg *Config
	mgr *manager[modbus.Client]
}

// NewModbusDriver creates a Modbus driver.
func NewModbusDriver(opts ...Option) (*ModbusDriver, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	newClient := func(s *link.Session, p Params) (*modbus.Client, error) {
		return modbus.NewClient(s, p.Mode,
			modbus.WithLogger(cfg.logger),
			modbus.WithProtocolID(p.ProtocolID),
		)
	}

	return &ModbusDriver{
		cfg: cfg,
		mgr: newManager(cfg, "modbus-driver", link.DefaultModbusTCPPort, modbus.MaxADUSize, newClient),
	}, nil
}

// Open returns a node for p. The shared session is created by the first
// node on the endpoint; mode and protocol id of later nodes on the same
// endpoint are ignored.
func (d *ModbusDriver) Open(p Params) (*Node, error) {
	p = p.withDefaults(true)
	if err := p.validate(true); err != nil {
		return nil, err
	}

	if _, err := d.mgr.acquire(p); err != nil {
		return nil, err
	}

	return newNode(p, d), nil
}

// Close releases the node. The session is disposed with the last node on
// the endpoint. Closing a node twice returns ErrNodeClosed.
func (d *ModbusDriver) Close(n *Node) error {
	if err := n.check(d); err != nil {
		return err
	}
	if !n.closed.CompareAndSwap(false, true) {
		return ErrNodeClosed
	}

	return d.mgr.release(n.key)
}

// Shutdown disposes every session, open nodes included.
func (d *ModbusDriver) Shutdown() error {
	return d.mgr.closeAll()
}

// Session returns the live session shared by n, or nil once it was disposed.
func (d *ModbusDriver) Session(n *Node) *link.Session {
	if n == nil {
		return nil
	}

	return d.mgr.session(n.key)
}

func (d *ModbusDriver) client(n *Node) (*modbus.Client, error) {
	if err := n.check(d); err != nil {
		return nil, err
	}

	c := d.mgr.client(n.key)
	if c == nil {
		return nil, ErrNodeClosed
	}

	return c, nil
}

// Read reads points with the node's read function.
//
// Coil and discrete input reads decode to bool; register reads decode to
// the point type.
func (d *ModbusDriver) Read(ctx context.Context, n *Node, points []point.Point) (map[string]any, error) {
	c, err := d.client(n)
	if err != nil {
		return nil, err
	}

	log := d.mgr.logger.With("endpoint", n.Endpoint, "host", n.Station)
	fn := n.ReadFunction
	isBit := fn.IsBit()

	items := make([]segment.Item, 0, len(points))
	for _, p := range points {
		addr, err := point.ParseModbusAddress(p.Address)
		if err != nil {
			log.Warn("invalid point address", "point", p.Name, "error", err)
			continue
		}

		it, err := resolve(p, addr, isBit)
		if err != nil {
			log.Warn("invalid point type", "point", p.Name, "type", p.Type, "error", err)
			continue
		}
		items = append(items, it)
	}

	maxCount := modbus.MaxReadRegisters
	if isBit {
		maxCount = modbus.MaxReadBits
	}

	fetch := func(ctx context.Context, seg segment.Segment) segment.Result {
		if seg.End() > 0x10000 {
			return segment.Result{Err: fmt.Errorf("%w: segment %s beyond address space", modbus.ErrInvalidQuantity, seg)}
		}

		return result(c.Read(ctx, fn, n.Station, uint16(seg.Offset), seg.Count)) //nolint:gosec // checked above
	}

	return readItems(ctx, log, n.params, maxCount, items, fetch), nil
}

// Write writes value to the point with the node's write function. A single
// write function is promoted to its multiple variant when the value spans
// more than one element.
//
// It returns the number of elements written, or -1 when the device did not
// answer in time.
func (d *ModbusDriver) Write(ctx context.Context, n *Node, p point.Point, value any) (int, error) {
	c, err := d.client(n)
	if err != nil {
		return -1, err
	}

	addr, err := point.ParseModbusAddress(p.Address)
	if err != nil {
		return -1, err
	}

	fn := n.WriteFunction
	vt, err := point.Resolve(p, fn.IsBit())
	if err != nil {
		return -1, err
	}

	words, err := point.ToRegisters(vt, value)
	if err != nil {
		return -1, fmt.Errorf("write %s: %w", p.Name, err)
	}

	if len(words) > 1 {
		switch fn {
		case modbus.WriteRegister:
			fn = modbus.WriteRegisters
		case modbus.WriteCoil:
			fn = modbus.WriteCoils
		}
	}

	return c.Write(ctx, fn, n.Station, uint16(addr.Offset), words) //nolint:gosec // parser bounds offsets to 16 bits
}

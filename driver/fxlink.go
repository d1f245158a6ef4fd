package driver

import (
	"context"
	"fmt"

	"github.com/arloliu/go-plclink/fxlink"
	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/point"
	"github.com/arloliu/go-plclink/segment"
)

// FxLinkDriver reads and writes FX computer-link devices.
//
// Nodes opened on the same endpoint share one session, so transactions for
// different stations on a multi-drop line never interleave.
type FxLinkDriver struct {
	cfg *Config
	mgr *manager[fxlink.Client]
}

// NewFxLinkDriver creates an FX link driver.
func NewFxLinkDriver(opts ...Option) (*FxLinkDriver, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	newClient := func(s *link.Session, _ Params) (*fxlink.Client, error) {
		return fxlink.NewClient(s, fxlink.WithLogger(cfg.logger))
	}

	return &FxLinkDriver{
		cfg: cfg,
		mgr: newManager(cfg, "fxlink-driver", 0, fxlink.MaxReplySize, newClient),
	}, nil
}

// Open returns a node for p. The shared session is created by the first
// node on the endpoint; the port itself is dialed on the first transaction.
func (d *FxLinkDriver) Open(p Params) (*Node, error) {
	p = p.withDefaults(false)
	if err := p.validate(false); err != nil {
		return nil, err
	}

	if _, err := d.mgr.acquire(p); err != nil {
		return nil, err
	}

	return newNode(p, d), nil
}

// Close releases the node. The session is disposed with the last node on
// the endpoint. Closing a node twice returns ErrNodeClosed.
func (d *FxLinkDriver) Close(n *Node) error {
	if err := n.check(d); err != nil {
		return err
	}
	if !n.closed.CompareAndSwap(false, true) {
		return ErrNodeClosed
	}

	return d.mgr.release(n.key)
}

// Shutdown disposes every session, open nodes included.
func (d *FxLinkDriver) Shutdown() error {
	return d.mgr.closeAll()
}

// Session returns the live session shared by n, or nil once it was disposed.
func (d *FxLinkDriver) Session(n *Node) *link.Session {
	if n == nil {
		return nil
	}

	return d.mgr.session(n.key)
}

func (d *FxLinkDriver) client(n *Node) (*fxlink.Client, error) {
	if err := n.check(d); err != nil {
		return nil, err
	}

	c := d.mgr.client(n.key)
	if c == nil {
		return nil, ErrNodeClosed
	}

	return c, nil
}

// Read reads points from the node and returns their values by point name.
//
// Bit regions (X, Y, M, S) decode to bool; word regions decode to the
// point type. Points with unparsable addresses or unknown types are skipped
// with a warning. Points whose segment failed are absent from the map.
func (d *FxLinkDriver) Read(ctx context.Context, n *Node, points []point.Point) (map[string]any, error) {
	c, err := d.client(n)
	if err != nil {
		return nil, err
	}

	log := d.mgr.logger.With("endpoint", n.Endpoint, "station", n.Station)

	items := make([]segment.Item, 0, len(points))
	for _, p := range points {
		addr, err := point.ParseFxAddress(p.Address)
		if err != nil {
			log.Warn("invalid point address", "point", p.Name, "error", err)
			continue
		}

		it, err := resolve(p, addr, point.IsBitRegion(addr.Region))
		if err != nil {
			log.Warn("invalid point type", "point", p.Name, "type", p.Type, "error", err)
			continue
		}
		items = append(items, it)
	}

	fetch := func(ctx context.Context, seg segment.Segment) segment.Result {
		address := fmt.Sprintf("%s%d", seg.Region, seg.Offset)
		if point.IsBitRegion(seg.Region) {
			return result(c.ReadBit(ctx, n.Station, address, seg.Count))
		}

		return result(c.ReadWord(ctx, n.Station, address, seg.Count))
	}

	return readItems(ctx, log, n.params, fxlink.MaxCount, items, fetch), nil
}

// Write writes value to the point. Bit regions take any bool-like value;
// word regions encode value by the point type.
//
// It returns the number of elements written, or -1 when the controller did
// not acknowledge in time.
func (d *FxLinkDriver) Write(ctx context.Context, n *Node, p point.Point, value any) (int, error) {
	c, err := d.client(n)
	if err != nil {
		return -1, err
	}

	addr, err := point.ParseFxAddress(p.Address)
	if err != nil {
		return -1, err
	}
	address := fmt.Sprintf("%s%d", addr.Region, addr.Offset)

	isBit := point.IsBitRegion(addr.Region)
	vt, err := point.Resolve(p, isBit)
	if err != nil {
		return -1, err
	}

	words, err := point.ToRegisters(vt, value)
	if err != nil {
		return -1, fmt.Errorf("write %s: %w", p.Name, err)
	}

	if isBit {
		return c.WriteBit(ctx, n.Station, address, words...)
	}

	return c.WriteWord(ctx, n.Station, address, words...)
}

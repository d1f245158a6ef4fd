package driver

import (
	"sync/atomic"

	"github.com/arloliu/go-plclink/modbus"
)

// Node is one device opened through a driver. Nodes on the same endpoint
// share one session; a node itself is a lightweight handle.
type Node struct {
	// Endpoint is the serial port name or TCP address.
	Endpoint string
	// Station is the FX station number or Modbus unit id.
	Station byte
	// ReadFunction and WriteFunction are the Modbus functions used for the
	// node's points. Zero for FX link nodes.
	ReadFunction  modbus.Function
	WriteFunction modbus.Function

	params Params
	key    string
	owner  any
	closed atomic.Bool
}

func newNode(p Params, owner any) *Node {
	return &Node{
		Endpoint:      p.Endpoint,
		Station:       p.Station,
		ReadFunction:  p.ReadFunction,
		WriteFunction: p.WriteFunction,
		params:        p,
		key:           p.key(),
		owner:         owner,
	}
}

// Params returns the node parameters after defaults were applied.
func (n *Node) Params() Params { return n.params }

// Key returns the identity of the shared channel, "network://endpoint".
func (n *Node) Key() string { return n.key }

// IsClosed reports whether the node was closed.
func (n *Node) IsClosed() bool { return n.closed.Load() }

func (n *Node) check(owner any) error {
	if n == nil || n.owner != owner {
		return ErrInvalidNode
	}
	if n.closed.Load() {
		return ErrNodeClosed
	}

	return nil
}

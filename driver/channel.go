package driver

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/logger"
)

// channel is the session shared by every node on one endpoint.
type channel[C any] struct {
	key string

	mu      sync.Mutex
	nodes   int
	session *link.Session
	client  atomic.Pointer[C]
}

// Nodes returns the number of open nodes on the channel.
func (ch *channel[C]) Nodes() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.nodes
}

// manager keeps one channel per endpoint. Channels stay in the map once
// created; an idle channel only holds its key and a nil client.
type manager[C any] struct {
	cfg         *Config
	logger      logger.Logger
	defaultPort int
	replySize   int
	newClient   func(s *link.Session, p Params) (*C, error)

	channels *xsync.MapOf[string, *channel[C]]
}

func newManager[C any](cfg *Config, component string, defaultPort, replySize int,
	newClient func(*link.Session, Params) (*C, error),
) *manager[C] {
	return &manager[C]{
		cfg:         cfg,
		logger:      cfg.logger.With("component", component),
		defaultPort: defaultPort,
		replySize:   replySize,
		newClient:   newClient,
		channels:    xsync.NewMapOf[string, *channel[C]](),
	}
}

// acquire returns the client of the channel for p, creating the session on
// first use, and counts one more node.
func (m *manager[C]) acquire(p Params) (*C, error) {
	key := p.key()
	ch, _ := m.channels.LoadOrCompute(key, func() *channel[C] {
		return &channel[C]{key: key}
	})

	ch.mu.Lock()
	defer ch.mu.Unlock()

	client := ch.client.Load()
	if client == nil {
		session, err := link.NewSession(p.Endpoint, m.dialer(p), m.cfg.sessionOptions(p, m.replySize)...)
		if err != nil {
			return nil, err
		}

		client, err = m.newClient(session, p)
		if err != nil {
			_ = session.Close()
			return nil, err
		}

		ch.session = session
		ch.client.Store(client)
		m.logger.Info("channel created", "endpoint", key)
	}
	ch.nodes++

	return client, nil
}

// release counts one node less and disposes the session after the last one.
func (m *manager[C]) release(key string) error {
	ch, ok := m.channels.Load(key)
	if !ok {
		return ErrInvalidNode
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.nodes == 0 {
		return ErrNodeClosed
	}
	ch.nodes--
	if ch.nodes > 0 {
		return nil
	}

	err := ch.session.Close()
	ch.session = nil
	ch.client.Store(nil)
	m.logger.Info("channel disposed", "endpoint", key)

	return err
}

// client returns the live client of the channel, or nil.
func (m *manager[C]) client(key string) *C {
	ch, ok := m.channels.Load(key)
	if !ok {
		return nil
	}

	return ch.client.Load()
}

// session returns the live session of the channel, or nil.
func (m *manager[C]) session(key string) *link.Session {
	ch, ok := m.channels.Load(key)
	if !ok {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.session
}

// nodes returns the open node count of the channel.
func (m *manager[C]) nodes(key string) int {
	ch, ok := m.channels.Load(key)
	if !ok {
		return 0
	}

	return ch.Nodes()
}

// closeAll disposes every live session regardless of open nodes.
func (m *manager[C]) closeAll() error {
	var firstErr error

	m.channels.Range(func(key string, ch *channel[C]) bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()

		if ch.session != nil {
			if err := ch.session.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		ch.session = nil
		ch.nodes = 0
		ch.client.Store(nil)

		return true
	})

	return firstErr
}

func (m *manager[C]) dialer(p Params) link.Dialer {
	if m.cfg.dialer != nil {
		return m.cfg.dialer(p)
	}

	return p.dialer(m.defaultPort)
}

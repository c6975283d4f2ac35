// Package broker owns the single broker connection shared by every publisher
// of a gateway instance.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ghalamif/AegisGate/internal/ports"
)

// ErrManagerClosed is returned by Connection after Close.
var ErrManagerClosed = errors.New("broker: manager closed")

const connectKey = "connect"

// Manager lazily establishes one broker connection and hands the same instance
// to every caller. Concurrent callers share a single in-flight dial; once the
// dial succeeds the connection is cached until the transport reports it closed.
type Manager struct {
	dialer ports.Dialer
	obs    ports.Observability

	group singleflight.Group

	mu     sync.RWMutex
	conn   ports.Connection
	closed bool

	state atomic.Int32
	dials atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(dialer ports.Dialer, obs ports.Observability) (*Manager, error) {
	if dialer == nil {
		return nil, fmt.Errorf("broker dialer is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer: dialer,
		obs:    obs,
		ctx:    ctx,
		cancel: cancel,
	}
	m.setState(ports.StateDisconnected)
	return m, nil
}

// Connection returns the shared connection, dialing it if needed. ctx bounds
// only this caller's wait; the shared dial keeps running for other callers.
func (m *Manager) Connection(ctx context.Context) (ports.Connection, error) {
	conn, err := m.cached()
	if conn != nil || err != nil {
		return conn, err
	}

	ch := m.group.DoChan(connectKey, m.dial)
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(ports.Connection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) dial() (any, error) {
	// another dial may have finished between the cache miss and DoChan
	if conn, err := m.cached(); conn != nil || err != nil {
		return conn, err
	}

	m.dials.Add(1)
	m.setState(ports.StateConnecting)

	conn, err := m.dialer.Dial(m.ctx, m.observe)
	if err != nil {
		if m.ctx.Err() != nil {
			return nil, ErrManagerClosed
		}
		m.setState(ports.StateError)
		m.obs.LogError("broker_connect_failed", err)
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrManagerClosed
	}
	m.conn = conn
	m.mu.Unlock()

	m.setState(ports.StateConnected)
	m.obs.LogInfo("broker_connected")
	return conn, nil
}

func (m *Manager) cached() (ports.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	return m.conn, nil
}

// observe maps transport events onto the manager state and the log.
func (m *Manager) observe(ev ports.ConnectionEvent, err error) {
	field := ports.Field{Key: "event", Value: string(ev)}
	switch ev {
	case ports.EventConnecting:
		m.obs.LogInfo("broker_connecting", field)
	case ports.EventConnected:
		if m.State() == ports.StateReconnecting {
			m.setState(ports.StateConnected)
		}
		m.obs.LogInfo("broker_link_up", field)
	case ports.EventReconnecting:
		if m.State() == ports.StateConnected {
			m.setState(ports.StateReconnecting)
		}
		m.obs.LogInfo("broker_reconnecting", field)
	case ports.EventOffline, ports.EventDisconnected:
		if m.State() == ports.StateConnected {
			m.setState(ports.StateReconnecting)
		}
		m.obs.LogError("broker_"+string(ev), err, field)
	case ports.EventClosing:
		m.obs.LogInfo("broker_closing", field)
	case ports.EventClosed:
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.setState(ports.StateClosed)
		m.obs.LogInfo("broker_closed", field)
	case ports.EventError:
		m.obs.LogError("broker_error", err, field)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() ports.ConnectionState {
	return ports.ConnectionState(m.state.Load())
}

// IsConnected reports whether a connection is cached and the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == ports.StateConnected
}

// Dials returns how many underlying dial attempts were started.
func (m *Manager) Dials() int64 {
	return m.dials.Load()
}

// Close aborts any pending dial and closes the cached connection. The manager
// cannot be used afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()

	var err error
	if conn != nil {
		m.observe(ports.EventClosing, nil)
		done := make(chan error, 1)
		go func() { done <- conn.Close() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	m.setState(ports.StateClosed)
	return err
}

func (m *Manager) setState(s ports.ConnectionState) {
	m.state.Store(int32(s))
}

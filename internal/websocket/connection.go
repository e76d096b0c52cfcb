package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"healthdom/pkg/types"
)

// State tags the lifecycle position of a connection. Transitions only move
// forward: Connecting -> Authenticated -> Open -> Closed.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection wraps a WebSocket with a single writer goroutine so concurrent
// dispatches never interleave frames on the wire.
type Connection struct {
	ws           *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration

	mu     sync.RWMutex
	userID string
	role   types.Role
	state  State

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded WebSocket and starts its writer goroutine.
func NewConnection(ws *websocket.Conn, writeTimeout time.Duration, sendBuffer int) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ws:           ws,
		sendCh:       make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		state:        StateConnecting,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// writeLoop is the single writer. Within one connection, payloads go out in
// the order Send accepted them. A failed or timed-out write closes the
// connection so the registry drops it on the next dispatch.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// SetIdentity binds the resolved user identity to the connection and moves
// it to Authenticated. Chat-relay guests pass an empty role.
func (c *Connection) SetIdentity(userID string, role types.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	c.userID = userID
	c.role = role
	c.state = StateAuthenticated
	return nil
}

// MarkOpen records that the connection is registered and serviced.
func (c *Connection) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAuthenticated {
		c.state = StateOpen
	}
}

// Send queues a text payload for delivery. It never blocks past the write
// timeout: a stalled peer's full buffer surfaces as ErrWriteTimeout and the
// caller drops the connection instead of waiting on it.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- payload:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close transitions to Closed, stops the writer and closes the socket.
// Safe to call from any goroutine, any number of times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		c.cancel()
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}

// State returns the current lifecycle tag.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UserID returns the identity the connection is registered under.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Role returns the authenticated role, empty for chat guests.
func (c *Connection) Role() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

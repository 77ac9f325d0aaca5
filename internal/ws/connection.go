package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a websocket connection behind the interfaces.Connection
// contract. All writes go through a single writer goroutine fed by a
// buffered channel, so WriteJSON is safe from any goroutine and a slow
// client cannot block a broadcast.
type Connection struct {
	id            string
	conn          *websocket.Conn
	writeCh       chan []byte
	identityID    string
	role          string
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // guards identity fields
}

// NewConnection allocates the wrapper and starts its writer goroutine. The
// connection id is server-generated and opaque to clients.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop(writeTimeout)
	return c
}

func (c *Connection) writeLoop(writeTimeout time.Duration) {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the server-generated connection id.
func (c *Connection) ID() string {
	return c.id
}

// WriteJSON queues a message for the writer goroutine. A closed connection
// or full buffer returns an error immediately; fan-out callers treat both
// as a delivery miss.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteBufferFull
	}
}

// Close tears the connection down once; repeated calls are no-ops.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity binds the authenticated identity to the connection.
func (c *Connection) SetIdentity(identityID, role string) error {
	if identityID == "" {
		return ErrEmptyIdentity
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.identityID = identityID
	c.role = role
	c.authenticated = true
	return nil
}

func (c *Connection) IdentityID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identityID
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

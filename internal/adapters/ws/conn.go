package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"peerline/go-backend/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Conn implements core.SignalConnection over a websocket. Frames are
// buffered through send and drained by the write pump; a full buffer
// is reported, never waited on.
type Conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, buf int) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan core.Frame, buf),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

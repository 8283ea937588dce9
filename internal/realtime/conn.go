// Package realtime — Task 3.1: Live client connections.
// A Conn is one connected real-time client: an id plus a buffered outbound
// frame queue drained by the HTTP stream handler. The router never blocks on
// a slow client; when a queue is full the frame is dropped and counted.
package realtime

import (
	"sync"
	"sync/atomic"
)

// FrameType enumerates the server→client message types of the real-time
// protocol.
type FrameType string

const (
	FrameConnected  FrameType = "connected"
	FrameProcessing FrameType = "processing"
	FrameResponse   FrameType = "response"
	FrameBroadcast  FrameType = "broadcast"
)

// Frame is one server→client message.
type Frame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

const outboundBuffer = 64

// Conn is one live client connection.
type Conn struct {
	id      string
	out     chan Frame
	closed  sync.Once
	dropped atomic.Uint64
}

func newConn(id string) *Conn {
	return &Conn{id: id, out: make(chan Frame, outboundBuffer)}
}

// ID returns the connection id assigned at registration.
func (c *Conn) ID() string { return c.id }

// Frames is the outbound queue the transport handler drains. The channel is
// closed when the connection is torn down.
func (c *Conn) Frames() <-chan Frame { return c.out }

// Dropped reports how many frames were discarded because the queue was full.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// push enqueues a frame without blocking. Returns false if the frame was
// dropped because the queue is full. The router calls push only under its
// lock, which also serializes push against close.
func (c *Conn) push(f Frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// close shuts the outbound queue. Idempotent.
func (c *Conn) close() {
	c.closed.Do(func() { close(c.out) })
}

// Package registry tracks live websocket connections for presence and
// broadcast. It owns the heartbeat sweep: connections that fail to answer a
// ping between two sweeps are closed through the same offline path as a clean
// disconnect.
package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abstimmung-app/backend/internal/model/event"
)

// Conn is the subset of *websocket.Conn the registry needs. Narrowed so tests
// can drive the registry without real sockets.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one registered connection. Writes are serialized through a mutex
// because gorilla/websocket supports at most one concurrent writer.
type Client struct {
	conn  Conn
	mu    sync.Mutex
	alive bool
}

// NewClient wraps a freshly accepted connection. New clients start alive.
func NewClient(conn Conn) *Client {
	return &Client{conn: conn, alive: true}
}

// Send encodes and writes one envelope. Send on a closed connection returns
// the transport error; callers log and move on.
func (c *Client) Send(env event.Envelope) error {
	raw, err := event.Encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// MarkAlive re-arms the liveness flag, typically from a pong handler.
func (c *Client) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Client) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// Registry is the mutable set of currently open connections.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Register adds a connection to the set.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes a connection from the set.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ForEach invokes fn for every registered connection. It iterates a snapshot
// so fn may send, register or unregister without holding the registry lock.
func (r *Registry) ForEach(fn func(*Client)) {
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// Sweep runs one heartbeat pass. Connections whose liveness flag was not
// re-armed since the previous sweep are closed and handed to onDead so the
// same offline cleanup runs as on a clean close; the rest get their flag
// cleared and a ping, to be re-armed by the peer's pong.
func (r *Registry) Sweep(onDead func(*Client)) {
	r.ForEach(func(c *Client) {
		if !c.isAlive() {
			log.Printf("[registry] closing unresponsive connection")
			r.Unregister(c)
			_ = c.Close()
			if onDead != nil {
				onDead(c)
			}
			return
		}
		if err := c.ping(); err != nil {
			log.Printf("[registry] ping failed: %v", err)
		}
	})
}

// Run sweeps on a ticker until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onDead func(*Client)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(onDead)
		}
	}
}

// Package dispatch routes inbound message payloads to operation handlers by
// their declared type name. The table replaces a central switch: operations
// are registered once at startup and unknown names degrade to a fixed
// fallback that surfaces the offending payload as data, never as a
// connection failure.
package dispatch

import (
	"context"
	"encoding/json"
	"log"

	"github.com/abstimmung-app/backend/internal/model/event"
	"github.com/abstimmung-app/backend/internal/registry"
)

// HandlerFunc handles one operation for one client. Handlers decode their own
// arguments, may block on storage, and are solely responsible for sending
// their response with the request's correlation token.
type HandlerFunc func(ctx context.Context, args json.RawMessage, client *registry.Client, location json.RawMessage)

// FallbackFunc receives the whole payload of an unknown operation.
type FallbackFunc func(ctx context.Context, payload event.Payload, client *registry.Client, location json.RawMessage)

// Table maps operation names to handlers. It is populated during startup and
// read-only afterwards, so dispatching takes no lock.
type Table struct {
	handlers map[string]HandlerFunc
	fallback FallbackFunc
}

// New creates a table with the given unknown-operation fallback.
func New(fallback FallbackFunc) *Table {
	return &Table{
		handlers: make(map[string]HandlerFunc),
		fallback: fallback,
	}
}

// Register binds an operation name to its handler.
func (t *Table) Register(op string, h HandlerFunc) {
	t.handlers[op] = h
}

// Dispatch routes a decoded payload to its handler, or to the fallback when
// the operation name is unknown.
func (t *Table) Dispatch(ctx context.Context, payload event.Payload, client *registry.Client, location json.RawMessage) {
	if h, ok := t.handlers[payload.Type]; ok {
		h(ctx, payload.Result, client, location)
		return
	}
	log.Printf("[dispatch] unknown operation %q", payload.Type)
	t.fallback(ctx, payload, client, location)
}

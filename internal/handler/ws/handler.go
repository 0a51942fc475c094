// Package ws exposes the event protocol over a websocket endpoint: it owns
// the connection lifecycle, decodes envelopes and feeds them into the
// dispatch table.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abstimmung-app/backend/internal/dispatch"
	"github.com/abstimmung-app/backend/internal/model/event"
	"github.com/abstimmung-app/backend/internal/registry"
	"github.com/abstimmung-app/backend/internal/service/auth"
	"github.com/abstimmung-app/backend/internal/service/voting"
)

// Handler upgrades connections and runs one read loop per client. Messages of
// one connection are processed strictly in receipt order; different
// connections never wait on each other.
type Handler struct {
	auth     *auth.Service
	votes    *voting.Service
	registry *registry.Registry
	table    *dispatch.Table
	upgrader websocket.Upgrader
}

// New builds the websocket handler and populates its dispatch table.
func New(authSvc *auth.Service, votingSvc *voting.Service, reg *registry.Registry) *Handler {
	h := &Handler{
		auth:     authSvc,
		votes:    votingSvc,
		registry: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.table = h.buildTable()
	return h
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	client := registry.NewClient(conn)
	conn.SetPongHandler(func(string) error {
		client.MarkAlive()
		return nil
	})

	h.registry.Register(client)
	log.Printf("[ws] client connected, total=%d", h.registry.Len())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	defer func() {
		h.registry.Unregister(client)
		_ = client.Close()
		// Clean close and sweep kill funnel through the same offline
		// transition so presence cleanup runs uniformly.
		h.handleEnvelope(ctx, client, event.Envelope{Event: event.KindOffline})
		log.Printf("[ws] client disconnected, total=%d", h.registry.Len())
	}()

	// A connection's first event is always online, generated locally rather
	// than received from the peer.
	h.handleEnvelope(ctx, client, event.Envelope{Event: event.KindOnline})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		env, err := event.Decode(raw)
		if err != nil {
			// Malformed input is logged and dropped; the connection stays up
			// and no response is produced.
			log.Printf("[ws] dropping malformed envelope: %v", err)
			continue
		}

		h.handleEnvelope(ctx, client, env)
	}
}

func (h *Handler) handleEnvelope(ctx context.Context, client *registry.Client, env event.Envelope) {
	switch env.Event {
	case event.KindOnline:
		if err := client.Send(event.Welcome()); err != nil {
			log.Printf("[ws] welcome send failed: %v", err)
		}
	case event.KindMessage:
		var payload event.Payload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Printf("[ws] dropping message with malformed payload: %v", err)
			return
		}
		h.table.Dispatch(ctx, payload, client, env.Location)
	case event.KindOffline:
		// Presence state is the registry entry itself, already removed by the
		// time the offline event fires.
	default:
		log.Printf("[ws] ignoring envelope of kind %q", env.Event)
	}
}

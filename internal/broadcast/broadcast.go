// Package broadcast fans state-change notifications out to every registered
// connection, decoupling mutating handlers from the transport.
package broadcast

import (
	"log"

	"github.com/abstimmung-app/backend/internal/model/event"
	"github.com/abstimmung-app/backend/internal/registry"
)

// Coordinator sends refresh envelopes over the connection registry. It is
// handed to the services as their notifier; only successful mutations reach it.
type Coordinator struct {
	registry *registry.Registry
}

// New wires the coordinator to a registry.
func New(r *registry.Registry) *Coordinator {
	return &Coordinator{registry: r}
}

// Refresh notifies every connected client that shared state changed. The
// envelope carries no payload; clients re-query what they display. Failed
// sends are logged and skipped so one dead socket never stalls the fan-out.
func (c *Coordinator) Refresh() {
	env := event.Refresh()
	c.registry.ForEach(func(client *registry.Client) {
		if err := client.Send(env); err != nil {
			log.Printf("[broadcast] refresh send failed: %v", err)
		}
	})
}

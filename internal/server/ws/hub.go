// Package ws pushes change events to connected clients over websockets.
// Each connection is bound to the authenticated user and their group
// memberships at upgrade time; events are delivered only to connections
// allowed to see the event's scope.
package ws

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/services"
)

// eventBuffer bounds how many undelivered events Publish will queue before
// dropping. Events are advisory; clients re-fetch on reconnect anyway.
const eventBuffer = 64

type client struct {
	conn   *websocket.Conn
	userID string
	groups map[string]bool
}

// visible reports whether the client may see events for scope.
func (c *client) visible(scope models.Scope) bool {
	switch scope.Kind {
	case models.ScopeUser:
		return scope.ID == c.userID
	case models.ScopeGroup:
		return c.groups[scope.ID]
	}
	return false
}

// Hub fans service events out to websocket clients. It implements
// services.Notifier.
type Hub struct {
	logger     logging.Logger
	register   chan *client
	unregister chan *client
	events     chan services.Event
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger.With("module", "ws"),
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan services.Event, eventBuffer),
	}
}

// Publish queues an event for delivery. It never blocks; when the hub is
// saturated the event is dropped.
func (h *Hub) Publish(e services.Event) {
	select {
	case h.events <- e:
	default:
		h.logger.Warn(context.Background(), "event dropped, hub saturated", "type", e.Type)
	}
}

// Subscribe binds an upgraded connection to a user and their groups and
// starts its read loop. The read loop only watches for the peer closing.
func (h *Hub) Subscribe(conn *websocket.Conn, userID string, groupIDs []string) {
	c := &client{conn: conn, userID: userID, groups: make(map[string]bool, len(groupIDs))}
	for _, id := range groupIDs {
		c.groups[id] = true
	}
	h.register <- c

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- c
				return
			}
		}
	}()
}

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	clients := map[*client]bool{}
	defer func() {
		for c := range clients {
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			clients[c] = true
			h.logger.Debug(ctx, "client connected", "user_id", c.userID, "clients", len(clients))

		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				c.conn.Close()
			}
			h.logger.Debug(ctx, "client disconnected", "clients", len(clients))

		case e := <-h.events:
			scope, err := models.ParseScope(e.Scope)
			if err != nil {
				h.logger.Warn(ctx, "event with invalid scope", "scope", e.Scope)
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error(ctx, "marshalling event", "error", err.Error())
				continue
			}
			for c := range clients {
				if !c.visible(scope) {
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.logger.Debug(ctx, "write failed, dropping client", "error", err.Error())
					delete(clients, c)
					c.conn.Close()
				}
			}
		}
	}
}

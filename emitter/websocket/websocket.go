// Package websocket bridges browser-facing WebSocket connections into
// fsm.Emitter, so a page can trigger (and observe) Machine transitions
// over a live socket. Grounded on pkg/core/eventbus_ws.go's
// Upgrader+per-connection client map shape, reduced from its
// publish/send/request/subscribe/unsubscribe operation set down to the
// single "emit" operation an Emitter needs.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fluxorio/moorefsm"
)

// wireMessage is the JSON frame exchanged in both directions: {"event":
// "...", "args": [...]}.
type wireMessage struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// Hub implements fsm.Emitter, bridging every connected client's emitted
// events into its local listener set and broadcasting every local Emit
// out to every connected client.
type Hub struct {
	local    fsm.Emitter
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewHub returns a Hub with an empty client set. Register HandleWebSocket
// as an http.HandlerFunc to accept connections.
func NewHub() *Hub {
	return &Hub{
		local: fsm.NewEmitter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the request and starts reading frames from the
// new client until it disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		args := make([]interface{}, len(msg.Args))
		for i, raw := range msg.Args {
			var v interface{}
			_ = json.Unmarshal(raw, &v)
			args[i] = v
		}
		h.local.Emit(msg.Event, args...)
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// On implements fsm.Emitter, registering a purely local handler.
func (h *Hub) On(event string, handler fsm.EventHandler) fsm.Subscription {
	return h.local.On(event, handler)
}

// Once implements fsm.Emitter.
func (h *Hub) Once(event string, handler fsm.EventHandler) fsm.Subscription {
	return h.local.Once(event, handler)
}

// Listeners implements fsm.Emitter, reporting only local handlers.
func (h *Hub) Listeners(event string) []fsm.EventHandler {
	return h.local.Listeners(event)
}

// Emit implements fsm.Emitter: it fires every local listener and
// broadcasts the event to every connected client.
func (h *Hub) Emit(event string, args ...interface{}) {
	h.local.Emit(event, args...)

	raws := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		raws[i] = b
	}
	msg := wireMessage{Event: event, Args: raws}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		_ = conn.WriteJSON(msg)
	}
}

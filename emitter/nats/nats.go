// Package nats adapts a NATS connection into fsm.Emitter, letting
// machines in different processes trigger each other's transitions over
// the same subject space. Grounded on pkg/core/eventbus_cluster_nats.go's
// nats.Connect/subject-prefix pattern, reduced to plain pub/sub: no
// request/reply, no queue groups, since an Emitter only ever needs
// fan-out broadcast of an event to every listener, local or remote.
package nats

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/fluxorio/moorefsm"
)

// Config configures a Conn's subject space.
type Config struct {
	// URL is the NATS server URL. Defaults to nats.DefaultURL.
	URL string
	// Prefix is prepended to every subject, as "<prefix>.<event>". Default "moorefsm".
	Prefix string
}

// Conn implements fsm.Emitter over a NATS connection. Every On/Once call
// opens its own NATS subscription; Emit JSON-encodes its args and
// publishes once. Listeners only reports locally registered handlers: NATS
// core pub/sub has no way to enumerate remote subscribers, matching the
// same local-only limitation the in-process Emitter would have if it were
// asked about another machine's listeners.
type Conn struct {
	nc     *nats.Conn
	prefix string

	mu        sync.RWMutex
	listeners map[string][]fsm.EventHandler
}

// Connect dials cfg.URL and returns a ready Conn.
func Connect(cfg Config) (*Conn, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "moorefsm"
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("emitter/nats: connect: %w", err)
	}

	return &Conn{
		nc:        nc,
		prefix:    prefix,
		listeners: make(map[string][]fsm.EventHandler),
	}, nil
}

// Close drains and closes the underlying NATS connection.
func (c *Conn) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	c.nc.Close()
	return nil
}

func (c *Conn) subject(event string) string {
	return c.prefix + "." + event
}

type envelope struct {
	Args []json.RawMessage `json:"args"`
}

// On implements fsm.Emitter.
func (c *Conn) On(event string, handler fsm.EventHandler) fsm.Subscription {
	return c.subscribe(event, handler, false)
}

// Once implements fsm.Emitter.
func (c *Conn) Once(event string, handler fsm.EventHandler) fsm.Subscription {
	return c.subscribe(event, handler, true)
}

func (c *Conn) subscribe(event string, handler fsm.EventHandler, once bool) fsm.Subscription {
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], handler)
	c.mu.Unlock()

	var sub *nats.Subscription
	msgHandler := func(m *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			return
		}
		args := make([]interface{}, len(env.Args))
		for i, raw := range env.Args {
			var v interface{}
			_ = json.Unmarshal(raw, &v)
			args[i] = v
		}
		handler(args...)
		if once {
			_ = sub.Unsubscribe()
			c.removeListener(event, handler)
		}
	}

	sub, _ = c.nc.Subscribe(c.subject(event), msgHandler)
	return &subscription{c: c, event: event, handler: handler, sub: sub}
}

func (c *Conn) removeListener(event string, handler fsm.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.listeners[event]
	for i := range list {
		// Compare by position only: Go func values are not comparable, so
		// the first (oldest) registration for this event is removed. Good
		// enough for Listeners' purpose (a presence check), not intended
		// for precise multi-subscriber bookkeeping.
		if i == 0 {
			c.listeners[event] = list[1:]
			return
		}
	}
}

// Emit implements fsm.Emitter: it JSON-encodes args and publishes to the
// event's subject. It does not invoke local handlers directly; NATS
// core pub/sub delivers the message back to this same connection's
// subscribers too, so locally registered handlers still fire.
func (c *Conn) Emit(event string, args ...interface{}) {
	raws := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		raws[i] = b
	}
	data, err := json.Marshal(envelope{Args: raws})
	if err != nil {
		return
	}
	_ = c.nc.Publish(c.subject(event), data)
}

// Listeners implements fsm.Emitter, returning only handlers registered
// through this Conn.
func (c *Conn) Listeners(event string) []fsm.EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]fsm.EventHandler, len(c.listeners[event]))
	copy(out, c.listeners[event])
	return out
}

type subscription struct {
	c       *Conn
	event   string
	handler fsm.EventHandler
	sub     *nats.Subscription
}

// Cancel unsubscribes from NATS and removes the local listener entry.
func (s *subscription) Cancel() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.c.removeListener(s.event, s.handler)
}

package fsm

import "sync"

// EventHandler receives the arguments passed to Emitter.Emit for the event
// it was registered against.
type EventHandler func(args ...interface{})

// Subscription is returned by Emitter.On/Once and cancels that single
// registration when Cancel is called. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Emitter is the narrow host event-emitter abstraction the core consumes.
// Any object exposing On/Once/Emit/Listeners can be passed to
// StateHandle.On, including a Machine itself (used for stateChanged and
// for all-state-event registration) and arbitrary host objects such as the
// adapters under emitter/nats and emitter/websocket.
type Emitter interface {
	// On subscribes handler to event and returns a Subscription that
	// removes it.
	On(event string, handler EventHandler) Subscription
	// Once subscribes handler to fire at most once, then auto-removes.
	Once(event string, handler EventHandler) Subscription
	// Emit invokes every handler currently registered for event, in
	// registration order, synchronously.
	Emit(event string, args ...interface{})
	// Listeners returns the handlers currently registered for event, in
	// registration order. The returned slice is a snapshot.
	Listeners(event string) []EventHandler
}

// inprocEmitter is the default, dependency-free Emitter implementation.
// Grounded on pkg/core/bus.go's topic -> subscriber-list map, extended
// with Once and Listeners to satisfy the Emitter contract in full.
type inprocEmitter struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

type subscriber struct {
	handler EventHandler
	once    bool
}

type emitterSubscription struct {
	e     *inprocEmitter
	event string
	sub   *subscriber
}

func (s *emitterSubscription) Cancel() {
	s.e.remove(s.event, s.sub)
}

// NewEmitter returns a fresh in-process Emitter. Machine uses one of these
// internally for its own stateChanged event unless overridden with
// WithEmitter.
func NewEmitter() Emitter {
	return &inprocEmitter{subs: make(map[string][]*subscriber)}
}

func (e *inprocEmitter) On(event string, handler EventHandler) Subscription {
	return e.subscribe(event, handler, false)
}

func (e *inprocEmitter) Once(event string, handler EventHandler) Subscription {
	return e.subscribe(event, handler, true)
}

func (e *inprocEmitter) subscribe(event string, handler EventHandler, once bool) Subscription {
	sub := &subscriber{handler: handler, once: once}
	e.mu.Lock()
	e.subs[event] = append(e.subs[event], sub)
	e.mu.Unlock()
	return &emitterSubscription{e: e, event: event, sub: sub}
}

func (e *inprocEmitter) remove(event string, target *subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.subs[event]
	for i, s := range list {
		if s == target {
			e.subs[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (e *inprocEmitter) Emit(event string, args ...interface{}) {
	e.mu.RLock()
	list := make([]*subscriber, len(e.subs[event]))
	copy(list, e.subs[event])
	e.mu.RUnlock()

	for _, sub := range list {
		sub.handler(args...)
		if sub.once {
			e.remove(event, sub)
		}
	}
}

func (e *inprocEmitter) Listeners(event string) []EventHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.subs[event]
	out := make([]EventHandler, len(list))
	for i, s := range list {
		out[i] = s.handler
	}
	return out
}

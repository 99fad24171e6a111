package fsm

import (
	"sync"
	"time"
)

// StateHandle is the per-state scope. It is the only lawful channel for
// causing a transition out of the state it belongs to, and it owns every
// listener and timer registered while that state is active: when the
// machine leaves the state (crossing a root boundary), the handle and its
// linked chain are torn down automatically.
//
// A StateHandle is valid from the moment its state's entry function is
// invoked until GotoState is called on it with a target that passes the
// validTransitions check (whether or not the transition itself then
// succeeds); after that every further GotoState call fails. A GotoState
// call rejected by validTransitions leaves the handle valid.
type StateHandle struct {
	fsm   *Machine
	state string

	mu           sync.Mutex
	valid        bool
	disconnected bool         // set once disconnect has torn this scope down
	link         *StateHandle // previous handle, when this one continues its scope

	listeners []Subscription
	timeouts  []Cancellable
	intervals []Cancellable
	immediates []Cancellable

	validTransitionsList []string
	validTransitionsSet  bool

	nextState string // diagnostic only: the state this handle transitioned to
}

func newStateHandle(m *Machine, state string, link *StateHandle) *StateHandle {
	return &StateHandle{
		fsm:   m,
		state: state,
		valid: true,
		link:  link,
	}
}

// Machine returns the FSM this handle belongs to, so an entry function can
// subscribe to the machine's own events (h.On(h.Machine(), "login", ...))
// or read its state without holding a separate reference in closure scope.
func (h *StateHandle) Machine() *Machine {
	return h.fsm
}

// On subscribes cb to emitter's event and records the subscription so it
// is torn down with the rest of this state's scope.
func (h *StateHandle) On(emitter Emitter, event string, cb EventHandler) {
	sub := emitter.On(event, cb)
	h.mu.Lock()
	h.listeners = append(h.listeners, sub)
	h.mu.Unlock()
}

// Timeout schedules a one-shot callback, recording its token for teardown.
func (h *StateHandle) Timeout(d time.Duration, cb func()) {
	tok := h.fsm.timer.Timeout(d, cb)
	h.mu.Lock()
	h.timeouts = append(h.timeouts, tok)
	h.mu.Unlock()
}

// Interval schedules a periodic callback, recording its token for teardown.
func (h *StateHandle) Interval(d time.Duration, cb func()) {
	tok := h.fsm.timer.Interval(d, cb)
	h.mu.Lock()
	h.intervals = append(h.intervals, tok)
	h.mu.Unlock()
}

// Immediate schedules a next-tick callback, recording its token for teardown.
func (h *StateHandle) Immediate(cb func()) {
	tok := h.fsm.timer.Immediate(cb)
	h.mu.Lock()
	h.immediates = append(h.immediates, tok)
	h.mu.Unlock()
}

// Callback returns a function that forwards its arguments to cb iff this
// handle is still valid and its scope has not been torn down when it is
// called; otherwise it is a silent no-op. No per-callback teardown
// bookkeeping is required: the guard is checked at call time.
func (h *StateHandle) Callback(cb EventHandler) EventHandler {
	return func(args ...interface{}) {
		h.mu.Lock()
		valid := h.valid && !h.disconnected
		h.mu.Unlock()
		if !valid {
			return
		}
		cb(args...)
	}
}

// ValidTransitions restricts gotoState, from this state, to the given list
// of target state names.
func (h *StateHandle) ValidTransitions(list []string) {
	h.mu.Lock()
	h.validTransitionsList = append([]string(nil), list...)
	h.validTransitionsSet = true
	h.mu.Unlock()
}

// GotoState causes the FSM to transition to target. It fails if this
// handle has already been used, or if a validTransitions list is set and
// target is absent from it.
func (h *StateHandle) GotoState(target string) error {
	h.mu.Lock()
	if !h.valid {
		current := h.fsm.GetState()
		prev := h.nextState
		h.mu.Unlock()
		return newHandleAlreadyUsedError(current, target, prev)
	}
	if h.validTransitionsSet && !contains(h.validTransitionsList, target) {
		h.mu.Unlock()
		return newInvalidTransitionError(h.state, target)
	}
	h.valid = false
	h.nextState = target
	h.mu.Unlock()

	return h.fsm.transition(target)
}

// disconnect removes every listener and cancels every timer registered
// through this handle, then cascades to the linked (parent-scope) handle,
// if any. Idempotent.
func (h *StateHandle) disconnect() {
	h.mu.Lock()
	listeners := h.listeners
	timeouts := h.timeouts
	intervals := h.intervals
	immediates := h.immediates
	link := h.link
	h.disconnected = true
	h.listeners = nil
	h.timeouts = nil
	h.intervals = nil
	h.immediates = nil
	h.link = nil
	h.mu.Unlock()

	for _, s := range listeners {
		s.Cancel()
	}
	for _, t := range timeouts {
		t.Cancel()
	}
	for _, t := range intervals {
		t.Cancel()
	}
	for _, t := range immediates {
		t.Cancel()
	}
	if link != nil {
		link.disconnect()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package fsm implements a framework for expressing asynchronous programs
// as Moore finite state machines. Each Machine instance has a single
// current state; the code associated with a state (its StateFn) runs
// exactly once, on entry. Events, timers, and other machines' state
// changes are used only to trigger transitions to other states. Callbacks
// and timers registered while a state is active are scoped to a
// StateHandle: when the machine leaves the state, they are torn down
// automatically.
//
// Features:
//   - Hierarchical (one level deep) sub-states that inherit their parent's
//     active listeners and timers.
//   - A StateHandle per state entry, the only lawful channel for causing
//     a transition, invalidated once used.
//   - Deferred, ordered stateChanged notification on a later turn.
//   - allStateEvent enforcement: states that forget to wire a required
//     listener fail loudly instead of silently dropping events.
//
// See emitter/nats and emitter/websocket for host Emitter implementations
// suitable for cross-process or browser-facing use.
package fsm

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fluxorio/moorefsm/internal/failfast"
	"github.com/fluxorio/moorefsm/internal/logging"
)

// historyCapacity is the fixed size of Machine.History's ring buffer. Not
// configurable; see DESIGN.md's Open Question decision.
const historyCapacity = 7

// StateFn is the code associated with a state. It must be synchronous. It
// may register listeners/timers via handle, read/mutate fields on the
// receiver it closes over, call handle.GotoState at most once, and emit
// events.
type StateFn func(handle *StateHandle)

// Spec is the immutable, built state table a Machine runs against. Build
// one with a Builder.
type Spec struct {
	states         map[string]StateFn
	subStates      map[string]map[string]StateFn
	allStateEvents []string
}

// Builder composes a Spec. This replaces the source's "subclass declares
// entry functions as prototype methods" with a registered state table, per
// spec.md's design note: the core is polymorphic over a capability set
// (lookup-by-name, lookup-sub-by-parent-and-name, required all-state
// events), and a builder composing a map of name -> closure satisfies that
// contract just as well as subtyping would. Grounded on
// pkg/fsm/builder.go's StateConfigBuilder and, from the rest of the
// retrieval pack, tobbstr-fsm's NewSpecBuilder shape.
type Builder struct {
	states         map[string]StateFn
	subStates      map[string]map[string]StateFn
	allStateEvents []string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		states:    make(map[string]StateFn),
		subStates: make(map[string]map[string]StateFn),
	}
}

// State registers the entry function for a top-level state.
func (b *Builder) State(name string, fn StateFn) *Builder {
	failfast.NotEmpty(name, "state name")
	failfast.NotNil(fn, "entry function")
	b.states[name] = fn
	return b
}

// SubState registers the entry function for a sub-state, nested one level
// under parent. Depth beyond one level is rejected at transition time, not
// at registration time, matching spec.md's "more dots => malformed" rule.
func (b *Builder) SubState(parent, leaf string, fn StateFn) *Builder {
	failfast.NotEmpty(parent, "parent state name")
	failfast.NotEmpty(leaf, "sub-state name")
	failfast.NotNil(fn, "entry function")
	m, ok := b.subStates[parent]
	if !ok {
		m = make(map[string]StateFn)
		b.subStates[parent] = m
	}
	m[leaf] = fn
	return b
}

// AllStateEvent marks name as an event every state must register a
// listener for. Mirrors the source's "subclass constructor calls
// allStateEvent before delegating to the core constructor" — here it is
// simply called on the Builder before Build/New.
func (b *Builder) AllStateEvent(name string) *Builder {
	b.allStateEvents = append(b.allStateEvents, name)
	return b
}

// Build finalizes the Spec. The Builder can be discarded afterwards; the
// Spec is safe for concurrent use by multiple Machine instances.
func (b *Builder) Build() *Spec {
	states := make(map[string]StateFn, len(b.states))
	for k, v := range b.states {
		states[k] = v
	}
	subStates := make(map[string]map[string]StateFn, len(b.subStates))
	for parent, m := range b.subStates {
		cp := make(map[string]StateFn, len(m))
		for k, v := range m {
			cp[k] = v
		}
		subStates[parent] = cp
	}
	return &Spec{
		states:         states,
		subStates:      subStates,
		allStateEvents: append([]string(nil), b.allStateEvents...),
	}
}

// Machine is a single Moore FSM instance. Construct one with New.
type Machine struct {
	id   string
	spec *Spec

	logger  logging.Logger
	timer   Timer
	emitter Emitter

	metricsHook func(from, to string, err error)
	traceHook   func(from, to string) func(err error)

	mu             sync.Mutex
	state          string
	handle         *StateHandle
	history        []string
	inTransition   bool
	nextState      *string
	toEmit         []string
	emitPending    bool
	allStateEvents []string
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	failfast.NotNil(l, "logger")
	return func(m *Machine) { m.logger = l }
}

// WithTimer overrides the default stdlib-backed Timer.
func WithTimer(t Timer) Option {
	failfast.NotNil(t, "timer")
	return func(m *Machine) { m.timer = t }
}

// WithEmitter overrides the default in-process Emitter the Machine uses
// for its own stateChanged event and all-state-event registrations.
func WithEmitter(e Emitter) Option {
	failfast.NotNil(e, "emitter")
	return func(m *Machine) { m.emitter = e }
}

// WithID overrides the default randomly generated instance ID.
func WithID(id string) Option {
	failfast.NotEmpty(id, "id")
	return func(m *Machine) { m.id = id }
}

// WithMetricsHook installs a callback invoked once per attempted
// transition (successful or not) with the outcome. internal/metrics uses
// this to wire Prometheus counters/histograms without the core importing
// Prometheus directly.
func WithMetricsHook(hook func(from, to string, err error)) Option {
	failfast.NotNil(hook, "metrics hook")
	return func(m *Machine) { m.metricsHook = hook }
}

// WithTraceHook installs a callback invoked at the start of each attempted
// transition; its return value is invoked with the outcome once the
// transition finishes. internal/tracing uses this to wire OpenTelemetry
// spans without the core importing the OTel SDK directly.
func WithTraceHook(hook func(from, to string) func(err error)) Option {
	failfast.NotNil(hook, "trace hook")
	return func(m *Machine) { m.traceHook = hook }
}

// New constructs a Machine from spec and invokes the initial transition to
// initialState, exactly as construct(initialState) does in spec.md §4.1.
// Failures from that initial transition are returned.
func New(spec *Spec, initialState string, opts ...Option) (*Machine, error) {
	if spec == nil {
		return nil, newArgumentTypeError("spec", "must not be nil")
	}
	if initialState == "" {
		return nil, newArgumentTypeError("initialState", "must be a non-empty string")
	}

	m := &Machine{
		id:             uuid.NewString(),
		spec:           spec,
		logger:         logging.NewNopLogger(),
		timer:          NewTimer(),
		emitter:        NewEmitter(),
		allStateEvents: append([]string(nil), spec.allStateEvents...),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.transition(initialState); err != nil {
		return nil, err
	}
	return m, nil
}

// ID returns the Machine's instance identifier.
func (m *Machine) ID() string { return m.id }

// GetState returns the full current state name, or "" before initial
// entry (which New never returns without completing, so in practice this
// is never empty on a successfully constructed Machine).
func (m *Machine) GetState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsInState reports whether the machine is currently in s, or in any
// sub-state of s.
func (m *Machine) IsInState(s string) bool {
	return isInStateOf(m.GetState(), s)
}

func isInStateOf(current, s string) bool {
	return current == s || (len(current) > len(s) && current[:len(s)] == s && current[len(s)] == '.')
}

// OnState invokes cb synchronously if the machine is already in s (or a
// sub-state of s); otherwise it subscribes to stateChanged and invokes cb
// the first time the new state satisfies the predicate. Non-matching
// changes leave the subscription armed; after the first match it is
// cancelled, so cb runs at most once.
func (m *Machine) OnState(s string, cb func(fullState string)) {
	if m.IsInState(s) {
		cb(m.GetState())
		return
	}
	var sub Subscription
	sub = m.emitter.On(eventStateChanged, func(args ...interface{}) {
		full, _ := args[0].(string)
		if isInStateOf(full, s) {
			sub.Cancel()
			cb(full)
		}
	})
}

// AllStateEvent is the escape hatch matching the source's public
// operation of the same name; prefer Builder.AllStateEvent at construction
// time. Calling it after construction extends the requirement starting
// from the *next* transition's all-state-event check.
func (m *Machine) AllStateEvent(name string) {
	m.mu.Lock()
	m.allStateEvents = append(m.allStateEvents, name)
	m.mu.Unlock()
}

// GotoState is the public escape hatch for causing a transition; the
// sanctioned path is handle.GotoState from within a state's entry
// function or one of its registered callbacks.
func (m *Machine) GotoState(s string) error {
	return m.transition(s)
}

// History returns a copy of the last entered full state names, in entry
// order, capped at 7.
func (m *Machine) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

const eventStateChanged = "stateChanged"

// On implements Emitter, delegating to the Machine's own emitter. Other
// machines (or a host object) can subscribe to this Machine's
// stateChanged event, which is the sanctioned mechanism for inter-FSM
// coordination (spec.md §5 "Shared resources").
func (m *Machine) On(event string, handler EventHandler) Subscription {
	return m.emitter.On(event, handler)
}

// Once implements Emitter.
func (m *Machine) Once(event string, handler EventHandler) Subscription {
	return m.emitter.Once(event, handler)
}

// Emit implements Emitter. Exposed so a state's entry function can emit
// domain events of its own choosing in addition to the built-in
// stateChanged event.
func (m *Machine) Emit(event string, args ...interface{}) {
	m.emitter.Emit(event, args...)
}

// Listeners implements Emitter.
func (m *Machine) Listeners(event string) []EventHandler {
	return m.emitter.Listeners(event)
}

// transition is the internal transition routine of spec.md §4.1. It may
// be entered either "fresh" (m.mu not held by this goroutine: a
// GotoState/initial-construction/async-callback call) or "reentrant"
// (called synchronously from within the currently executing entry
// function, on the same goroutine, while m.mu is NOT held — see below).
//
// To keep a single, non-reentrant sync.Mutex correct under Go's
// concurrency model (unlike the source's single-threaded-cooperative
// assumption), the lock is released before the entry function runs and
// reacquired immediately after. A synchronous handle.GotoState call made
// from inside the entry function therefore finds the lock free, acquires
// it, observes inTransition==true, and queues nextState instead of
// recursing into a nested transition — exactly step 1 of spec.md §4.1,
// and the mechanism that lets the re-entrancy guard be expressed as plain
// data (inTransition/nextState) rather than actual call-stack recursion.
func (m *Machine) transition(target string) error {
	m.mu.Lock()
	if m.inTransition {
		if m.nextState != nil {
			m.mu.Unlock()
			return fmt.Errorf("fsm: a transition is already queued while entering %s", *m.nextState)
		}
		ns := target
		m.nextState = &ns
		m.mu.Unlock()
		return nil
	}
	return m.runTransitionLoop(target)
}

// runTransitionLoop executes steps 2-8 of spec.md §4.1, looping to drain
// any nextState queued by a reentrant call. m.mu must be held on entry and
// is released before returning.
func (m *Machine) runTransitionLoop(target string) error {
	for {
		from := m.state
		var traceDone func(error)
		if m.traceHook != nil {
			traceDone = m.traceHook(from, target)
		}

		handle, err := m.resolveAndCommit(target)
		if err != nil {
			m.mu.Unlock()
			m.logger.Warnf("fsm %s: transition to %q rejected: %v", m.id, target, err)
			if m.metricsHook != nil {
				m.metricsHook(from, target, err)
			}
			if traceDone != nil {
				traceDone(err)
			}
			return err
		}

		m.inTransition = true
		m.mu.Unlock()

		m.runEntry(handle)

		m.mu.Lock()

		err = m.checkAllStateEvents(target)
		if err != nil {
			m.logger.Errorf("fsm %s: %v", m.id, err)
		}
		m.scheduleEmission(target)

		m.logger.Debugf("fsm %s: entered state %q", m.id, target)
		if m.metricsHook != nil {
			m.metricsHook(from, target, err)
		}
		if traceDone != nil {
			traceDone(err)
		}

		if m.nextState == nil {
			m.mu.Unlock()
			return err
		}
		target = *m.nextState
		m.nextState = nil
		// loop: m.mu is still held, go around for the queued transition.
	}
}

// runEntry invokes the entry function with m.mu not held, letting panics
// propagate to the caller of GotoState/New exactly as spec.md's Open
// Question decision on exception safety prescribes: state/handle are
// already committed before this runs, so a panicking entry function
// leaves the machine in the new state. The defer re-locks m.mu, clears
// inTransition, and unlocks again unconditionally, on the panic path as
// much as the normal-return path, so a panic never wedges the
// re-entrancy guard or leaves m.mu held for every later transition.
func (m *Machine) runEntry(handle *StateHandle) {
	defer func() {
		m.mu.Lock()
		m.inTransition = false
		m.mu.Unlock()
	}()
	fn := m.lookupEntryFn(handle.state)
	fn(handle)
}

func (m *Machine) lookupEntryFn(full string) StateFn {
	root, leaf, hasLeaf := splitState(full)
	if !hasLeaf {
		return m.spec.states[root]
	}
	return m.spec.subStates[root][leaf]
}

// splitState splits a (already-validated) full state name into its root
// and, if present, its sub-leaf.
func splitState(full string) (root, leaf string, hasLeaf bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '.' {
			return full[:i], full[i+1:], true
		}
	}
	return full, "", false
}

// dotCount counts '.' occurrences, used to reject malformed (>1 dot)
// state names per spec.md §3 invariant 5.
func dotCount(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			n++
		}
	}
	return n
}

// resolveAndCommit performs steps 2-4 of spec.md §4.1: the scope
// tear-down boundary check, entry-function resolution, and committing the
// new state/handle/history. m.mu must be held; it is NOT released here.
func (m *Machine) resolveAndCommit(target string) (*StateHandle, error) {
	if dotCount(target) > 1 {
		return nil, newMalformedStateError(target)
	}
	root, leaf, hasLeaf := splitState(target)

	if _, ok := m.spec.states[root]; !ok {
		return nil, newUnknownStateError(target)
	}
	if hasLeaf {
		if _, ok := m.spec.subStates[root][leaf]; !ok {
			return nil, newUnknownSubStateError(target)
		}
	}

	prevRoot, _, _ := splitState(m.state)
	crossesBoundary := m.state == "" || prevRoot != root

	var link *StateHandle
	if crossesBoundary {
		if m.handle != nil {
			m.handle.disconnect()
		}
	} else {
		link = m.handle
	}

	m.state = target
	m.history = append(m.history, target)
	if len(m.history) > historyCapacity {
		m.history = m.history[len(m.history)-historyCapacity:]
	}

	handle := newStateHandle(m, target, link)
	m.handle = handle
	return handle, nil
}

// checkAllStateEvents is step 6 of spec.md §4.1.
func (m *Machine) checkAllStateEvents(state string) error {
	for _, name := range m.allStateEvents {
		if len(m.emitter.Listeners(name)) == 0 {
			return newAllStateEventMissingError(state, name)
		}
	}
	return nil
}

// scheduleEmission is step 7 of spec.md §4.1: append to toEmit, and if the
// buffer was empty, schedule a next-tick callback that swaps the buffer
// out and emits stateChanged once per queued name, in order. m.mu must be
// held; it is not released here (the caller releases or loops).
func (m *Machine) scheduleEmission(target string) {
	m.toEmit = append(m.toEmit, target)
	if m.emitPending {
		return
	}
	m.emitPending = true
	m.timer.Immediate(func() {
		m.mu.Lock()
		batch := m.toEmit
		m.toEmit = nil
		m.emitPending = false
		m.mu.Unlock()

		for _, s := range batch {
			m.emitter.Emit(eventStateChanged, s)
		}
	})
}

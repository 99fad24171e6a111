package fsm

import (
	"testing"
	"time"
)

const testWait = 200 * time.Millisecond

func buildTwoState(t *testing.T) (*Builder, *[]string) {
	t.Helper()
	var entered []string
	b := NewBuilder().
		State("idle", func(h *StateHandle) {
			entered = append(entered, "idle")
		}).
		State("running", func(h *StateHandle) {
			entered = append(entered, "running")
		})
	return b, &entered
}

func TestNewEntersInitialStateAndEmitsStateChanged(t *testing.T) {
	b, entered := buildTwoState(t)
	spec := b.Build()

	changed := make(chan string, 4)
	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.On(eventStateChanged, func(args ...interface{}) {
		changed <- args[0].(string)
	})

	if got := m.GetState(); got != "idle" {
		t.Fatalf("GetState() = %q, want idle", got)
	}
	if got := *entered; len(got) != 1 || got[0] != "idle" {
		t.Fatalf("entered = %v, want [idle]", got)
	}

	select {
	case got := <-changed:
		if got != "idle" {
			t.Fatalf("stateChanged = %q, want idle", got)
		}
	case <-time.After(testWait):
		t.Fatal("stateChanged for the initial state was never emitted")
	}
}

func TestGotoStateTransitionsAndRunsEntry(t *testing.T) {
	b, entered := buildTwoState(t)
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := m.GotoState("running"); err != nil {
		t.Fatalf("GotoState failed: %v", err)
	}
	if got := m.GetState(); got != "running" {
		t.Fatalf("GetState() = %q, want running", got)
	}
	if got := *entered; len(got) != 2 || got[1] != "running" {
		t.Fatalf("entered = %v, want [idle running]", got)
	}
}

func TestGotoStateUnknownStateIsRejected(t *testing.T) {
	b, _ := buildTwoState(t)
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = m.GotoState("nowhere")
	if err == nil {
		t.Fatal("expected an error transitioning to an unknown state")
	}
	fsmErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if fsmErr.Code != ErrUnknownState {
		t.Fatalf("Code = %v, want ErrUnknownState", fsmErr.Code)
	}
	if got := m.GetState(); got != "idle" {
		t.Fatalf("GetState() = %q, want idle (unchanged after rejected transition)", got)
	}
}

func TestMalformedStateNameIsRejected(t *testing.T) {
	b, _ := buildTwoState(t)
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = m.GotoState("running.sub.sub")
	if err == nil {
		t.Fatal("expected an error for a state name with more than one dot")
	}
	if fsmErr, ok := err.(*Error); !ok || fsmErr.Code != ErrMalformedState {
		t.Fatalf("error = %#v, want ErrMalformedState", err)
	}
}

func TestHandleAlreadyUsedRejectsSecondGotoState(t *testing.T) {
	var second *StateHandle
	b := NewBuilder().
		State("idle", func(h *StateHandle) { second = h }).
		State("running", func(h *StateHandle) {}).
		State("done", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := second.GotoState("running"); err != nil {
		t.Fatalf("first GotoState failed: %v", err)
	}
	err = second.GotoState("done")
	if err == nil {
		t.Fatal("expected an error reusing an already-used handle")
	}
	if fsmErr, ok := err.(*Error); !ok || fsmErr.Code != ErrHandleAlreadyUsed {
		t.Fatalf("error = %#v, want ErrHandleAlreadyUsed", err)
	}
	if got := m.GetState(); got != "running" {
		t.Fatalf("GetState() = %q, want running (second call had no effect)", got)
	}
}

func TestValidTransitionsRestrictsTargets(t *testing.T) {
	var handle *StateHandle
	b := NewBuilder().
		State("idle", func(h *StateHandle) {
			h.ValidTransitions([]string{"running"})
			handle = h
		}).
		State("running", func(h *StateHandle) {}).
		State("aborted", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = handle.GotoState("aborted")
	if err == nil {
		t.Fatal("expected an error for a transition outside validTransitions")
	}
	if fsmErr, ok := err.(*Error); !ok || fsmErr.Code != ErrInvalidTransition {
		t.Fatalf("error = %#v, want ErrInvalidTransition", err)
	}
	if got := m.GetState(); got != "idle" {
		t.Fatalf("GetState() = %q, want idle", got)
	}
}

func TestSubStateInheritsParentListenersUntilRootBoundary(t *testing.T) {
	triggered := make(chan struct{}, 1)

	b := NewBuilder().
		State("parent", func(h *StateHandle) {
			h.On(h.fsm, "tick", func(args ...interface{}) {
				triggered <- struct{}{}
			})
			h.GotoState("parent.child")
		}).
		SubState("parent", "child", func(h *StateHandle) {}).
		State("other", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "parent")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := m.GetState(); got != "parent.child" {
		t.Fatalf("GetState() = %q, want parent.child", got)
	}

	m.Emit("tick")
	select {
	case <-triggered:
	default:
		t.Fatal("listener registered in parent was not invoked while in parent.child")
	}

	if err := m.GotoState("other"); err != nil {
		t.Fatalf("GotoState(other) failed: %v", err)
	}
	m.Emit("tick")
	select {
	case <-triggered:
		t.Fatal("listener registered in parent fired again after crossing a root boundary")
	default:
	}
}

func TestAllStateEventMissingIsReportedButDoesNotBlockTransition(t *testing.T) {
	b := NewBuilder().
		State("idle", func(h *StateHandle) {}).
		State("running", func(h *StateHandle) {
			h.On(h.fsm, "error", func(args ...interface{}) {})
		}).
		AllStateEvent("error")
	spec := b.Build()

	m, err := New(spec, "idle")
	if err == nil {
		t.Fatal("expected New to surface the missing all-state-event error for the initial state")
	}
	if m != nil {
		t.Fatal("New should not return a usable Machine when the initial transition errors")
	}

	spec2 := NewBuilder().
		State("idle", func(h *StateHandle) {
			h.On(h.fsm, "error", func(args ...interface{}) {})
		}).
		State("running", func(h *StateHandle) {}). // deliberately omits the "error" listener
		AllStateEvent("error").
		Build()
	m2, err := New(spec2, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = m2.GotoState("running")
	if err == nil {
		t.Fatal("expected an error: running never registers the required all-state listener")
	}
	fsmErr, ok := err.(*Error)
	if !ok || fsmErr.Code != ErrAllStateEventMissing {
		t.Fatalf("error = %#v, want ErrAllStateEventMissing", err)
	}
	if got := m2.GetState(); got != "running" {
		t.Fatalf("GetState() = %q, want running (the transition itself still commits)", got)
	}
}

func TestTimersAreCancelledOnStateExit(t *testing.T) {
	fired := make(chan struct{}, 1)
	b := NewBuilder().
		State("idle", func(h *StateHandle) {
			h.Timeout(20*time.Millisecond, func() { fired <- struct{}{} })
		}).
		State("running", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.GotoState("running"); err != nil {
		t.Fatalf("GotoState failed: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("timeout fired after its owning state was exited")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestReentrantGotoStateFromEntryFunctionQueues(t *testing.T) {
	var order []string
	b := NewBuilder().
		State("a", func(h *StateHandle) {
			order = append(order, "a")
			if err := h.GotoState("b"); err != nil {
				t.Errorf("reentrant GotoState(b) failed: %v", err)
			}
			order = append(order, "a-after-goto")
		}).
		State("b", func(h *StateHandle) {
			order = append(order, "b")
		})
	spec := b.Build()

	m, err := New(spec, "a")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := m.GetState(); got != "b" {
		t.Fatalf("GetState() = %q, want b", got)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "a-after-goto" || order[2] != "b" {
		t.Fatalf("order = %v, want [a a-after-goto b]", order)
	}
}

func TestIsInStateMatchesSubStates(t *testing.T) {
	b := NewBuilder().
		State("parent", func(h *StateHandle) { h.GotoState("parent.child") }).
		SubState("parent", "child", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "parent")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !m.IsInState("parent") {
		t.Fatal("IsInState(parent) = false, want true while in parent.child")
	}
	if !m.IsInState("parent.child") {
		t.Fatal("IsInState(parent.child) = false, want true")
	}
	if m.IsInState("other") {
		t.Fatal("IsInState(other) = true, want false")
	}
}

func TestOnStateFiresOnceStateIsReached(t *testing.T) {
	b := NewBuilder().
		State("idle", func(h *StateHandle) {}).
		State("running", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "idle")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reached := make(chan string, 1)
	m.OnState("running", func(full string) { reached <- full })

	select {
	case <-reached:
		t.Fatal("OnState fired before the target state was entered")
	case <-time.After(20 * time.Millisecond):
	}

	if err := m.GotoState("running"); err != nil {
		t.Fatalf("GotoState failed: %v", err)
	}

	select {
	case full := <-reached:
		if full != "running" {
			t.Fatalf("OnState callback got %q, want running", full)
		}
	case <-time.After(testWait):
		t.Fatal("OnState did not fire after entering the target state")
	}
}

func TestHistoryIsCappedAndOrdered(t *testing.T) {
	b := NewBuilder().
		State("s0", func(h *StateHandle) {}).
		State("s1", func(h *StateHandle) {}).
		State("s2", func(h *StateHandle) {}).
		State("s3", func(h *StateHandle) {}).
		State("s4", func(h *StateHandle) {}).
		State("s5", func(h *StateHandle) {}).
		State("s6", func(h *StateHandle) {}).
		State("s7", func(h *StateHandle) {}).
		State("s8", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "s0")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, s := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"} {
		if err := m.GotoState(s); err != nil {
			t.Fatalf("GotoState(%s) failed: %v", s, err)
		}
	}

	hist := m.History()
	if len(hist) != historyCapacity {
		t.Fatalf("len(History()) = %d, want %d", len(hist), historyCapacity)
	}
	want := []string{"s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	for i, s := range want {
		if hist[i] != s {
			t.Fatalf("History()[%d] = %q, want %q (full: %v)", i, hist[i], s, hist)
		}
	}
}

func TestMetricsAndTraceHooksObserveEveryTransition(t *testing.T) {
	var metricsCalls []string
	var traceStarted, traceFinished []string

	b := NewBuilder().
		State("idle", func(h *StateHandle) {}).
		State("running", func(h *StateHandle) {})
	spec := b.Build()

	m, err := New(spec, "idle",
		WithMetricsHook(func(from, to string, err error) {
			metricsCalls = append(metricsCalls, from+"->"+to)
		}),
		WithTraceHook(func(from, to string) func(error) {
			traceStarted = append(traceStarted, from+"->"+to)
			return func(err error) {
				traceFinished = append(traceFinished, from+"->"+to)
			}
		}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.GotoState("running"); err != nil {
		t.Fatalf("GotoState failed: %v", err)
	}

	if len(metricsCalls) != 2 || metricsCalls[0] != "->idle" || metricsCalls[1] != "idle->running" {
		t.Fatalf("metricsCalls = %v", metricsCalls)
	}
	if len(traceStarted) != 2 || len(traceFinished) != 2 {
		t.Fatalf("traceStarted = %v, traceFinished = %v", traceStarted, traceFinished)
	}
}

func TestNewRejectsNilSpecAndEmptyInitialState(t *testing.T) {
	if _, err := New(nil, "idle"); err == nil {
		t.Fatal("expected an error constructing a Machine with a nil Spec")
	}
	spec := NewBuilder().State("idle", func(h *StateHandle) {}).Build()
	if _, err := New(spec, ""); err == nil {
		t.Fatal("expected an error constructing a Machine with an empty initial state")
	}
}

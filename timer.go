package fsm

import "time"

// Cancellable is a token returned by a Timer scheduling call. Cancel stops
// a pending one-shot/immediate callback, or stops a periodic one. Cancel
// is idempotent and safe after the callback has already fired.
type Cancellable interface {
	Cancel()
}

// Timer is the narrow host timer abstraction the core consumes. StateHandle
// delegates Timeout/Interval/Immediate to whichever Timer the owning
// Machine was constructed with.
//
// No repository in the retrieval pack reaches for a third-party scheduler
// for one-shot/periodic callbacks; every one of them (connection pool
// lifetimes, consumer timeouts, state-entry timestamps) uses time.Duration
// and the standard time package directly, so the default implementation
// here does the same. See DESIGN.md for the full stdlib justification.
type Timer interface {
	// Timeout schedules cb to run once after d elapses.
	Timeout(d time.Duration, cb func()) Cancellable
	// Interval schedules cb to run repeatedly every d until cancelled.
	Interval(d time.Duration, cb func()) Cancellable
	// Immediate schedules cb to run on a later turn, as soon as possible.
	Immediate(cb func()) Cancellable
}

type stdTimer struct{}

// NewTimer returns the default Timer, backed by time.AfterFunc and
// time.Ticker.
func NewTimer() Timer {
	return stdTimer{}
}

type afterFuncCancellable struct {
	t *time.Timer
}

func (c *afterFuncCancellable) Cancel() {
	c.t.Stop()
}

func (stdTimer) Timeout(d time.Duration, cb func()) Cancellable {
	t := time.AfterFunc(d, cb)
	return &afterFuncCancellable{t: t}
}

func (stdTimer) Immediate(cb func()) Cancellable {
	// There is no true "next tick" primitive in Go; a zero-delay
	// time.AfterFunc runs cb on a fresh goroutine as soon as the runtime
	// schedules it, which is the idiomatic stand-in and, crucially, never
	// runs cb synchronously within the caller's own stack frame.
	t := time.AfterFunc(0, cb)
	return &afterFuncCancellable{t: t}
}

type tickerCancellable struct {
	stop chan struct{}
}

func (c *tickerCancellable) Cancel() {
	select {
	case <-c.stop:
		// already stopped
	default:
		close(c.stop)
	}
}

func (stdTimer) Interval(d time.Duration, cb func()) Cancellable {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cb()
			}
		}
	}()
	return &tickerCancellable{stop: stop}
}

package fsm

import "sync"

// CallbackFunc is a conventional node-style asynchronous function: it is
// invoked with a completion callback as its only formal parameter here,
// because partial application of its other arguments is the caller's job
// (a plain Go closure), not the adapter's — see FromCallback.
//
// cb must be invoked exactly once, with a non-nil err on failure or a
// nil err and zero or more results on success.
type CallbackFunc func(cb func(err error, results ...interface{}))

// Adapter wraps a CallbackFunc so it can be used as a transition trigger
// via StateHandle.On, per spec.md §4.3. It does not retry and does not
// report multiple completions as an error: for each Run, only the event
// corresponding to the first callback invocation is emitted, and later
// invocations are ignored.
//
// Grounded on pkg/fluxor/async.go's wrapping of an async primitive
// (there, an EventBus call; here, a plain callback-shaped function) into
// a uniform reactive shape — adapted from a Future to an Emitter since the
// FSM core only knows how to trigger transitions off events, not futures.
type Adapter struct {
	Emitter
	f CallbackFunc
}

// FromCallback captures f (already partially applied over its own
// arguments by the caller's closure, and already bound to whatever
// receiver it needs) and returns a fresh Adapter. Nothing runs yet.
func FromCallback(f CallbackFunc) *Adapter {
	return &Adapter{
		Emitter: NewEmitter(),
		f:       f,
	}
}

// Run invokes the wrapped function. When its callback fires with a
// truthy error, Run emits "error" with that error; otherwise it emits
// "return" with the results. Only the first callback invocation emits.
func (a *Adapter) Run() {
	var once sync.Once
	a.f(func(err error, results ...interface{}) {
		once.Do(func() {
			if err != nil {
				a.Emit("error", err)
				return
			}
			a.Emit("return", results...)
		})
	})
}

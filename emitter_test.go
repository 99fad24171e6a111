package fsm

import "testing"

func TestEmitterOnReceivesEveryEmit(t *testing.T) {
	e := NewEmitter()

	var got []interface{}
	e.On("greet", func(args ...interface{}) { got = append(got, args[0]) })

	e.Emit("greet", "a")
	e.Emit("greet", "b")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got = %v, want [a b]", got)
	}
}

func TestEmitterOnceFiresExactlyOnce(t *testing.T) {
	e := NewEmitter()

	count := 0
	e.Once("greet", func(args ...interface{}) { count++ })

	e.Emit("greet")
	e.Emit("greet")
	e.Emit("greet")

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestEmitterCancelRemovesSubscription(t *testing.T) {
	e := NewEmitter()

	count := 0
	sub := e.On("greet", func(args ...interface{}) { count++ })

	e.Emit("greet")
	sub.Cancel()
	e.Emit("greet")

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestEmitterCancelIsIdempotent(t *testing.T) {
	e := NewEmitter()
	sub := e.On("greet", func(args ...interface{}) {})
	sub.Cancel()
	sub.Cancel() // must not panic
}

func TestEmitterListenersSnapshot(t *testing.T) {
	e := NewEmitter()

	if got := e.Listeners("greet"); len(got) != 0 {
		t.Fatalf("Listeners() = %v, want empty", got)
	}

	e.On("greet", func(args ...interface{}) {})
	e.On("greet", func(args ...interface{}) {})

	if got := e.Listeners("greet"); len(got) != 2 {
		t.Fatalf("len(Listeners()) = %d, want 2", len(got))
	}
}

func TestEmitterEmitInvokesInRegistrationOrder(t *testing.T) {
	e := NewEmitter()

	var order []int
	e.On("greet", func(args ...interface{}) { order = append(order, 1) })
	e.On("greet", func(args ...interface{}) { order = append(order, 2) })
	e.On("greet", func(args ...interface{}) { order = append(order, 3) })

	e.Emit("greet")

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

func TestEmitterEmitWithNoListenersIsANoop(t *testing.T) {
	e := NewEmitter()
	e.Emit("nobody-listening") // must not panic
}

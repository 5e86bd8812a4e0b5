package petalstream

import (
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// recorder subscribes to a stream and keeps every event it receives.
type recorder[T any] struct {
	mu     sync.Mutex
	sub    *Subscription
	events []Event[T]
	done   chan struct{}
	once   sync.Once
}

func record[T any](s Stream[T], initial int64) *recorder[T] {
	r := &recorder[T]{done: make(chan struct{})}
	s.Subscribe(
		func(sub *Subscription) {
			r.sub = sub
			sub.Request(initial)
		},
		r.onEvent,
	)
	return r
}

func (r *recorder[T]) onEvent(ev Event[T]) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.IsTerminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder[T]) snapshot() []Event[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event[T](nil), r.events...)
}

func (r *recorder[T]) values() []T {
	var out []T
	for _, ev := range r.snapshot() {
		if ev.IsValue() {
			v, _ := ev.Get()
			out = append(out, v)
		}
	}
	return out
}

func (r *recorder[T]) terminals() []Event[T] {
	var out []Event[T]
	for _, ev := range r.snapshot() {
		if ev.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}

// wait blocks until the terminal event arrived and returns it.
func (r *recorder[T]) wait(t *testing.T) Event[T] {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for terminal event, got %v", r.snapshot())
	}
	terms := r.terminals()
	return terms[0]
}

// waitValues blocks until at least n values arrived.
func (r *recorder[T]) waitValues(t *testing.T, n int) []T {
	t.Helper()
	eventually(t, func() bool { return len(r.values()) >= n })
	return r.values()
}

// eventually polls cond until it holds or the test times out.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

// settle gives in-flight queue work a moment to run before asserting that
// nothing else happened.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

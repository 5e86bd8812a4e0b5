// Package future resolves the first value of a stream.
package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/petal-labs/petalstream"
)

// ErrNoValue is returned when the stream completed before producing a value.
var ErrNoValue = errors.New("future: stream completed without a value")

// Future holds the first value or the terminal error of a stream.
type Future[T any] struct {
	sub  atomic.Pointer[petalstream.Subscription]
	done chan struct{}
	once sync.Once

	value T
	err   error
}

// From subscribes to s with a demand of one.
func From[T any](s petalstream.Stream[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	s.Subscribe(
		func(sub *petalstream.Subscription) {
			f.sub.Store(sub)
			sub.Request(1)
		},
		f.onEvent,
	)
	return f
}

func (f *Future[T]) onEvent(ev petalstream.Event[T]) {
	if ev.IsValue() {
		v, _ := ev.Get()
		f.resolve(v, nil)
		if sub := f.sub.Load(); sub != nil {
			sub.Cancel()
		}
		return
	}

	err := ev.Err()
	if err == nil {
		err = ErrNoValue
	}
	var zero T
	f.resolve(zero, err)
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the future to resolve or for ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel gives up on the value. An unresolved future resolves with
// petalstream.ErrObserverRemoved.
func (f *Future[T]) Cancel() {
	var zero T
	f.resolve(zero, petalstream.ErrObserverRemoved)
	if sub := f.sub.Load(); sub != nil {
		sub.Cancel()
	}
}

package bus

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/petal-labs/petalstream"
)

// Consumer reads a stream through a fixed-size buffer. It grants the stream
// demand for exactly the free buffer slots, so a value is only ever produced
// when there is room for it.
type Consumer[T any] struct {
	sub *petalstream.Subscription
	ch  chan T

	mu     sync.Mutex
	closed bool
	err    error
}

// Consume subscribes to s with a buffer of size values.
func Consume[T any](s petalstream.Stream[T], size int) *Consumer[T] {
	if size <= 0 {
		size = DefaultBufferSize
	}
	c := &Consumer[T]{ch: make(chan T, size)}
	s.Subscribe(
		func(sub *petalstream.Subscription) {
			c.sub = sub
			sub.Request(int64(size))
		},
		c.onEvent,
	)
	return c
}

func (c *Consumer[T]) onEvent(ev petalstream.Event[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if ev.IsValue() {
		v, _ := ev.Get()
		select {
		case c.ch <- v:
		default:
			// Unreachable while demand tracks free slots.
		}
		return
	}
	c.finish(ev.Err())
}

// finish closes the buffer. It must be called with mu held.
func (c *Consumer[T]) finish(err error) {
	c.closed = true
	c.err = err
	close(c.ch)
}

// Next returns the next value. Once the buffer is drained after the stream
// ended, Next returns petalstream.ErrStreamCompleted for normal completion
// or the stream error.
func (c *Consumer[T]) Next(ctx context.Context) (T, error) {
	select {
	case v, ok := <-c.ch:
		if !ok {
			var zero T
			if err := c.Err(); err != nil {
				return zero, err
			}
			return zero, petalstream.ErrStreamCompleted
		}
		c.sub.Request(1)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// All iterates over the remaining values. Iteration stops at completion;
// a stream or context error is yielded once as the last element.
func (c *Consumer[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := c.Next(ctx)
			if errors.Is(err, petalstream.ErrStreamCompleted) {
				return
			}
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Err returns the error that ended the stream, nil while it is running or
// after normal completion.
func (c *Consumer[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close unsubscribes. Buffered values can still be read; after them Next
// reports petalstream.ErrObserverRemoved. It is safe to call Close multiple
// times.
func (c *Consumer[T]) Close() error {
	c.sub.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.finish(petalstream.ErrObserverRemoved)
	}
	return nil
}

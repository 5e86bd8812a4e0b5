package petalstream

import "sync/atomic"

// Reduce returns a stream that folds every upstream value into an
// accumulator and, once upstream ends, emits the accumulated value followed
// by upstream's terminal event. Upstream is consumed one event at a time.
// An error returned by combine ends the stream with that error.
func Reduce[T, U any](upstream Stream[T], initial U, combine func(U, T) (U, error), opts ...Option) *SubStream[T, U] {
	return aggregate(upstream, "reduce", initial, combine, opts)
}

// CountEvents returns a stream that emits the number of values upstream
// produced.
func CountEvents[T any](upstream Stream[T], opts ...Option) *SubStream[T, int] {
	return aggregate(upstream, "count", 0, func(n int, _ T) (int, error) {
		return n + 1, nil
	}, opts)
}

// Coalesce returns a stream that emits every upstream value as a single
// slice once upstream ends.
func Coalesce[T any](upstream Stream[T], opts ...Option) *SubStream[T, []T] {
	return aggregate(upstream, "coalesce", []T(nil), func(all []T, v T) ([]T, error) {
		return append(all, v), nil
	}, opts)
}

// Final returns a stream that emits only the last upstream value. Nothing
// is emitted before the terminal event if upstream produced no value.
func Final[T any](upstream Stream[T], opts ...Option) *SubStream[T, T] {
	s := newSubStream[T, T](derivedConfig(upstream, "final", opts))
	var (
		started atomic.Bool
		last    T
		seen    bool
	)
	s.demand = oneAtATime(&started)
	s.handle = func(ev Event[T]) {
		if ev.IsValue() {
			last, seen = ev.value, true
			s.requestUpstream(1)
			return
		}
		if seen {
			s.dispatch(Value(last))
		}
		s.dispatch(ev)
	}
	s.attach(upstream)
	return s
}

func aggregate[T, U any](upstream Stream[T], kind string, initial U, combine func(U, T) (U, error), opts []Option) *SubStream[T, U] {
	s := newSubStream[T, U](derivedConfig(upstream, kind, opts))
	var started atomic.Bool
	acc := initial
	s.demand = oneAtATime(&started)
	s.handle = func(ev Event[T]) {
		if ev.IsValue() {
			next, err := combine(acc, ev.value)
			if err != nil {
				s.dispatch(Error[U](err))
				return
			}
			acc = next
			s.requestUpstream(1)
			return
		}
		s.dispatch(Value(acc))
		s.dispatch(Error[U](ev.Reason()))
	}
	s.attach(upstream)
	return s
}

// oneAtATime turns the first downstream demand into a single upstream
// request; later requests are issued by the handler after each value.
func oneAtATime(started *atomic.Bool) func(int64) int64 {
	return func(int64) int64 {
		if started.CompareAndSwap(false, true) {
			return 1
		}
		return 0
	}
}

package petalstream

import (
	"fmt"
	"sync/atomic"
)

// Limit returns a stream that forwards at most count upstream values and
// then completes. Upstream is never asked for more than count values in
// total.
func Limit[T any](upstream Stream[T], count int64, opts ...Option) *SubStream[T, T] {
	if count < 0 {
		panic(fmt.Sprintf("petalstream: negative limit %d", count))
	}

	s := newSubStream[T, T](derivedConfig(upstream, "limit", opts))
	var (
		forwarded atomic.Int64
		emitted   int64
	)
	s.demand = func(additional int64) int64 {
		for {
			f := forwarded.Load()
			remaining := count - f
			if remaining <= 0 {
				return 0
			}
			n := min(additional, remaining)
			if forwarded.CompareAndSwap(f, f+n) {
				return n
			}
		}
	}
	s.handle = func(ev Event[T]) {
		if ev.IsTerminal() {
			s.dispatch(ev)
			return
		}
		if emitted >= count {
			return
		}
		emitted++
		s.dispatch(ev)
		if emitted == count {
			s.dispatch(Completion[T]())
		}
	}
	s.attach(upstream)

	if count == 0 {
		s.Close()
	}
	return s
}

// Next is Limit under the name used by single-shot consumers.
func Next[T any](upstream Stream[T], count int64, opts ...Option) *SubStream[T, T] {
	return Limit(upstream, count, opts...)
}

// Skip returns a stream that discards the first count upstream values and
// forwards the rest. The first downstream request also asks upstream for the
// values that will be skipped.
func Skip[T any](upstream Stream[T], count int64, opts ...Option) *SubStream[T, T] {
	if count < 0 {
		panic(fmt.Sprintf("petalstream: negative skip %d", count))
	}

	s := newSubStream[T, T](derivedConfig(upstream, "skip", opts))
	var (
		requested atomic.Bool
		skipped   int64
	)
	s.demand = func(additional int64) int64 {
		if requested.CompareAndSwap(false, true) {
			return addDemand(additional, count)
		}
		return additional
	}
	s.handle = func(ev Event[T]) {
		if ev.IsValue() && skipped < count {
			skipped++
			return
		}
		s.dispatch(ev)
	}
	s.attach(upstream)
	return s
}

// addDemand adds two non-negative demands, saturating at Unbounded.
func addDemand(a, b int64) int64 {
	sum := a + b
	if sum < a || sum < b {
		return Unbounded
	}
	return sum
}

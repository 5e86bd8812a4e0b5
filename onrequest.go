package petalstream

import (
	"errors"
	"sync/atomic"
)

// onRequestBatch is the number of values produced per queue task before the
// work loop yields to other tasks on the queue.
const onRequestBatch = 64

// OnRequestStream produces values by calling a generator, and only while
// the stream has demand. The generator receives a 0-based index that grows
// by one per call. Returning ErrStreamCompleted ends the stream normally; any
// other error ends it with that error.
type OnRequestStream[T any] struct {
	*EventStream[T]

	generate  func(index int64) (T, error)
	started   atomic.Bool
	scheduled atomic.Bool

	// index is owned by queue.
	index int64
}

// NewOnRequestStream creates a stream backed by generate. Nothing is
// produced before Start.
func NewOnRequestStream[T any](generate func(index int64) (T, error), opts ...Option) *OnRequestStream[T] {
	s := &OnRequestStream[T]{
		EventStream: newEventStream[T](newConfig(opts)),
		generate:    generate,
	}
	s.hooks = s
	return s
}

// Start begins production. Only the first call has an effect.
func (s *OnRequestStream[T]) Start() {
	if s.started.CompareAndSwap(false, true) {
		s.schedule()
	}
}

func (s *OnRequestStream[T]) processAdditionalRequest(int64) {
	if s.started.Load() {
		s.schedule()
	}
}

// schedule queues the work loop unless it is already queued or running.
func (s *OnRequestStream[T]) schedule() {
	if s.scheduled.CompareAndSwap(false, true) {
		s.queue.Async(s.run)
	}
}

// run produces up to onRequestBatch values while demand lasts, then
// requeues itself so cancellations and other queue work can interleave.
func (s *OnRequestStream[T]) run() {
	for range onRequestBatch {
		if s.pending.Load() <= 0 {
			s.scheduled.Store(false)
			// Demand raised between the check and the store finds
			// scheduled still set, so pick it up here.
			if s.pending.Load() > 0 {
				s.schedule()
			}
			return
		}

		v, err := s.generate(s.index)
		s.index++
		if err != nil {
			if errors.Is(err, ErrStreamCompleted) {
				s.dispatch(Completion[T]())
			} else {
				s.dispatch(Error[T](err))
			}
			return
		}
		s.dispatch(Value(v))
	}
	s.queue.Async(s.run)
}

// FromSlice returns a started stream that produces values in order and
// then completes.
func FromSlice[T any](values []T, opts ...Option) *OnRequestStream[T] {
	s := NewOnRequestStream(func(i int64) (T, error) {
		if i >= int64(len(values)) {
			var zero T
			return zero, ErrStreamCompleted
		}
		return values[i], nil
	}, opts...)
	s.Start()
	return s
}

// Range returns a started stream of count consecutive integers beginning
// at start.
func Range(start, count int64, opts ...Option) *OnRequestStream[int64] {
	s := NewOnRequestStream(func(i int64) (int64, error) {
		if i >= count {
			return 0, ErrStreamCompleted
		}
		return start + i, nil
	}, opts...)
	s.Start()
	return s
}

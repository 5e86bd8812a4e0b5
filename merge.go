package petalstream

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// MergeStream combines the values of a changing set of source streams into
// one stream. Values are forwarded as they arrive, with no ordering across
// sources. Demand granted to the MergeStream is granted to every source.
//
// A source error ends the MergeStream immediately, unless errors are
// delayed: then the first error is remembered and reported once the stream
// is closed and every source has finished.
type MergeStream[T any] struct {
	*EventStream[T]

	delayErrors bool

	// Owned by queue.
	sources    map[uuid.UUID]*Subscription
	closed     bool
	delayedErr error
}

// NewMergeStream creates an empty MergeStream. Sources are added with
// Merge; the stream completes after Close once all sources have completed.
func NewMergeStream[T any](delayErrors bool, opts ...Option) *MergeStream[T] {
	return newMergeStream[T](newConfig(opts), delayErrors)
}

func newMergeStream[T any](cfg Config, delayErrors bool) *MergeStream[T] {
	m := &MergeStream[T]{
		EventStream: newEventStream[T](cfg),
		delayErrors: delayErrors,
		sources:     make(map[uuid.UUID]*Subscription),
	}
	m.hooks = m
	return m
}

// Merge returns a stream of the values of all streams. It completes when
// every stream has completed and ends at the first error.
func Merge[T any](streams ...Stream[T]) *MergeStream[T] {
	return mergeAll(streams, false)
}

// MergeDelayingErrors is like Merge, but reports the first error only after
// every stream has finished.
func MergeDelayingErrors[T any](streams ...Stream[T]) *MergeStream[T] {
	return mergeAll(streams, true)
}

func mergeAll[T any](streams []Stream[T], delayErrors bool) *MergeStream[T] {
	var cfg Config
	if len(streams) > 0 {
		cfg = derivedConfig(streams[0], "merge", nil)
	} else {
		cfg = newConfig(nil)
	}
	m := newMergeStream[T](cfg, delayErrors)
	for _, s := range streams {
		m.Merge(s)
	}
	m.Close()
	return m
}

// Merge adds source to the merged set. Sources added after Close are
// ignored.
func (m *MergeStream[T]) Merge(source Stream[T]) {
	m.queue.Async(func() {
		m.performMerge(source)
	})
}

// Close stops accepting new sources. The stream completes once every
// current source has completed, immediately if there are none.
func (m *MergeStream[T]) Close() {
	m.queue.Async(func() {
		m.closed = true
		m.completeIfDone()
	})
}

// performMerge subscribes to source and passes it the current demand. It
// runs on the queue.
func (m *MergeStream[T]) performMerge(source Stream[T]) {
	if m.closed || m.State() == StateEnded {
		return
	}

	var sub *Subscription
	source.Subscribe(
		func(s *Subscription) {
			sub = s
		},
		func(ev Event[T]) {
			s := sub
			m.queue.Async(func() {
				m.sourceEvent(s, ev)
			})
		},
	)

	m.sources[sub.id] = sub
	if p := m.pending.Load(); p > 0 {
		sub.Request(p)
	}
}

// sourceEvent handles an event from one source. It runs on the queue.
func (m *MergeStream[T]) sourceEvent(sub *Subscription, ev Event[T]) {
	if ev.IsValue() {
		m.dispatch(ev)
		return
	}

	if _, ok := m.sources[sub.id]; !ok {
		return
	}
	delete(m.sources, sub.id)

	if err := ev.Err(); err != nil {
		if !m.delayErrors {
			m.dispatch(Error[T](err))
			return
		}
		if m.delayedErr == nil {
			m.delayedErr = err
		}
	}
	m.completeIfDone()
}

// completeIfDone ends the stream once it is closed and no source is left.
func (m *MergeStream[T]) completeIfDone() {
	if !m.closed || len(m.sources) > 0 {
		return
	}
	if m.delayedErr != nil {
		m.dispatch(Error[T](m.delayedErr))
		return
	}
	m.dispatch(Completion[T]())
}

func (m *MergeStream[T]) processAdditionalRequest(additional int64) {
	m.queue.Async(func() {
		for _, sub := range slices.Collect(maps.Values(m.sources)) {
			sub.Request(additional)
		}
	})
}

func (m *MergeStream[T]) lastSubscriptionWasCanceled() {
	m.resetPending(0)
	m.dispatch(Error[T](ErrObserverRemoved))
}

func (m *MergeStream[T]) finalizeStream() {
	sources := m.sources
	m.sources = make(map[uuid.UUID]*Subscription)
	for _, sub := range sources {
		sub.Cancel()
	}
}

package petalstream

import "sync/atomic"

// FlatMapStream maps every upstream value to a stream and merges the values
// of all those streams. Upstream completion means no more inner streams will
// be added; the FlatMapStream completes once the inner streams in flight
// have completed too.
type FlatMapStream[T, U any] struct {
	*MergeStream[U]

	upstream  atomic.Pointer[Subscription]
	transform func(T) Stream[U]
}

// FlatMap returns a FlatMapStream that ends at the first error of upstream
// or of any inner stream.
func FlatMap[T, U any](upstream Stream[T], transform func(T) Stream[U], opts ...Option) *FlatMapStream[T, U] {
	return newFlatMap(upstream, transform, false, opts)
}

// FlatMapDelayingErrors returns a FlatMapStream that reports the first error
// only after upstream and every inner stream have finished.
func FlatMapDelayingErrors[T, U any](upstream Stream[T], transform func(T) Stream[U], opts ...Option) *FlatMapStream[T, U] {
	return newFlatMap(upstream, transform, true, opts)
}

func newFlatMap[T, U any](upstream Stream[T], transform func(T) Stream[U], delayErrors bool, opts []Option) *FlatMapStream[T, U] {
	f := &FlatMapStream[T, U]{
		MergeStream: newMergeStream[U](derivedConfig(upstream, "flat_map", opts), delayErrors),
		transform:   transform,
	}
	f.hooks = f

	upstream.Subscribe(
		func(sub *Subscription) {
			f.upstream.Store(sub)
		},
		func(ev Event[T]) {
			f.queue.Async(func() {
				f.upstreamEvent(ev)
			})
		},
	)
	return f
}

// upstreamEvent runs on the queue.
func (f *FlatMapStream[T, U]) upstreamEvent(ev Event[T]) {
	if ev.IsValue() {
		f.performMerge(f.transform(ev.value))
		return
	}

	if err := ev.Err(); err != nil {
		if !f.delayErrors {
			f.dispatch(Error[U](err))
			return
		}
		if f.delayedErr == nil {
			f.delayedErr = err
		}
	}
	f.closeFlatMap()
}

// closeFlatMap marks that no more inner streams will arrive.
func (f *FlatMapStream[T, U]) closeFlatMap() {
	f.closed = true
	f.completeIfDone()
}

func (f *FlatMapStream[T, U]) processAdditionalRequest(additional int64) {
	if sub := f.upstream.Load(); sub != nil {
		sub.Request(additional)
	}
	f.MergeStream.processAdditionalRequest(additional)
}

func (f *FlatMapStream[T, U]) finalizeStream() {
	if sub := f.upstream.Load(); sub != nil {
		sub.Cancel()
	}
	f.MergeStream.finalizeStream()
}

// Close ends the stream with normal completion right away, cancelling
// upstream and every inner stream.
func (f *FlatMapStream[T, U]) Close() {
	f.EventStream.Close()
}

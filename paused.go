package petalstream

import "sync/atomic"

// PausedStream holds back demand until Start is called. Downstream requests
// made before Start accumulate instead of reaching upstream; Start forwards
// them in one request.
type PausedStream[T any] struct {
	*SubStream[T, T]

	started atomic.Bool
	held    atomic.Int64
}

// Paused returns a PausedStream subscribed to upstream.
func Paused[T any](upstream Stream[T], opts ...Option) *PausedStream[T] {
	p := &PausedStream[T]{
		SubStream: newSubStream[T, T](derivedConfig(upstream, "paused", opts)),
	}
	p.hooks = p
	p.handle = p.dispatch
	p.attach(upstream)
	return p
}

// Start releases the held demand. Only the first call has an effect.
func (p *PausedStream[T]) Start() {
	if p.started.CompareAndSwap(false, true) {
		p.flush()
	}
}

// IsStarted reports whether Start was called.
func (p *PausedStream[T]) IsStarted() bool {
	return p.started.Load()
}

func (p *PausedStream[T]) processAdditionalRequest(additional int64) {
	for {
		held := p.held.Load()
		if p.held.CompareAndSwap(held, addDemand(held, additional)) {
			break
		}
	}
	// After Start, demand is forwarded as soon as it arrives.
	if p.started.Load() {
		p.flush()
	}
}

func (p *PausedStream[T]) flush() {
	if n := p.held.Swap(0); n > 0 {
		p.requestUpstream(n)
	}
}

package petalstream

import "sync/atomic"

// SubStream is a stream fed by exactly one upstream subscription. Demand
// granted to a SubStream is forwarded upstream, and the upstream
// subscription is cancelled when the SubStream ends.
//
// All operators in this package are SubStreams.
type SubStream[In, Out any] struct {
	*EventStream[Out]

	upstream atomic.Pointer[Subscription]

	// handle runs on the SubStream's queue for every upstream event.
	handle func(ev Event[In])

	// demand maps newly granted credit to the amount requested upstream.
	// nil forwards it unchanged.
	demand func(additional int64) int64
}

func newSubStream[In, Out any](cfg Config) *SubStream[In, Out] {
	s := &SubStream[In, Out]{EventStream: newEventStream[Out](cfg)}
	s.hooks = s
	s.handle = func(ev Event[In]) {
		if ev.IsTerminal() {
			s.dispatch(Error[Out](ev.Reason()))
		}
	}
	return s
}

// attach subscribes s to upstream. Upstream events hop onto the queue of s
// before they are handled.
func (s *SubStream[In, Out]) attach(upstream Stream[In]) {
	upstream.Subscribe(
		func(sub *Subscription) {
			s.setUpstream(sub)
		},
		func(ev Event[In]) {
			s.queue.Async(func() {
				s.handle(ev)
			})
		},
	)
}

// setUpstream stores the upstream subscription. Setting it twice is a
// programming error.
func (s *SubStream[In, Out]) setUpstream(sub *Subscription) {
	if !s.upstream.CompareAndSwap(nil, sub) {
		panic("petalstream: upstream subscription already set")
	}
	if s.State() == StateEnded {
		sub.Cancel()
	}
}

// Upstream returns the subscription to the upstream stream.
func (s *SubStream[In, Out]) Upstream() *Subscription {
	return s.upstream.Load()
}

// requestUpstream asks the upstream stream for n more events.
func (s *SubStream[In, Out]) requestUpstream(n int64) {
	if sub := s.upstream.Load(); sub != nil {
		sub.Request(n)
	}
}

func (s *SubStream[In, Out]) processAdditionalRequest(additional int64) {
	if s.demand != nil {
		additional = s.demand(additional)
	}
	s.requestUpstream(additional)
}

// lastSubscriptionWasCanceled ends the branch: nobody downstream wants its
// events any more, so the upstream subscription is released.
func (s *SubStream[In, Out]) lastSubscriptionWasCanceled() {
	s.resetPending(0)
	s.dispatch(Error[Out](ErrObserverRemoved))
}

func (s *SubStream[In, Out]) finalizeStream() {
	if sub := s.upstream.Load(); sub != nil {
		sub.Cancel()
	}
}

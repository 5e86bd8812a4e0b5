package petalstream

import (
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// Unbounded is the demand value meaning "every event the stream produces".
const Unbounded int64 = math.MaxInt64

// cancelled marks a subscription that can no longer change state.
const cancelled int64 = math.MinInt64

// requestTarget is the stream side of a subscription.
type requestTarget interface {
	updateRequest(requested int64)
	cancel(s *Subscription)
}

// targetRef boxes a requestTarget so it can live in an atomic.Pointer.
type targetRef struct {
	target requestTarget
}

// Subscription is the demand channel between one consumer and one stream.
// Request and Cancel are safe to call from any goroutine.
type Subscription struct {
	id        uuid.UUID
	requested atomic.Int64
	stream    atomic.Pointer[targetRef]
}

func newSubscription(target requestTarget) *Subscription {
	s := &Subscription{id: uuid.New()}
	s.stream.Store(&targetRef{target: target})
	return s
}

// ID returns the unique identity of the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Requested returns the outstanding demand. It returns Unbounded after
// RequestAll and a negative number once the subscription is cancelled.
func (s *Subscription) Requested() int64 {
	return s.requested.Load()
}

// IsCancelled reports whether the subscription was cancelled, either by the
// consumer or because the stream ended.
func (s *Subscription) IsCancelled() bool {
	return s.requested.Load() == cancelled
}

// Request adds n to the demand of the subscription. Requests of zero or
// fewer events are ignored. Demand saturates at Unbounded.
func (s *Subscription) Request(n int64) {
	if n <= 0 {
		return
	}

	var updated int64
	for {
		current := s.requested.Load()
		if current == cancelled || current == Unbounded {
			return
		}
		updated = current + n
		if updated < current || updated > Unbounded {
			updated = Unbounded
		}
		if s.requested.CompareAndSwap(current, updated) {
			break
		}
	}

	if ref := s.stream.Load(); ref != nil {
		ref.target.updateRequest(updated)
	}
}

// RequestAll grants unbounded demand.
func (s *Subscription) RequestAll() {
	s.Request(Unbounded)
}

// Cancel stops delivery to this subscription. It is idempotent.
func (s *Subscription) Cancel() {
	for {
		current := s.requested.Load()
		if current == cancelled {
			return
		}
		if s.requested.CompareAndSwap(current, cancelled) {
			break
		}
	}

	if ref := s.stream.Swap(nil); ref != nil {
		ref.target.cancel(s)
	}
}

// invalidate cancels the subscription from the stream side, without
// calling back into the stream.
func (s *Subscription) invalidate() {
	s.requested.Store(cancelled)
	s.stream.Store(nil)
}

// shouldNotify consumes one unit of demand. It reports whether the
// subscriber may receive the next value.
func (s *Subscription) shouldNotify() bool {
	for {
		current := s.requested.Load()
		if current == Unbounded {
			return true
		}
		if current <= 0 {
			return false
		}
		if s.requested.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

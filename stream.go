package petalstream

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"
)

// State is the lifecycle state of a stream.
type State int

const (
	// StateWaiting means no subscriber has granted demand yet.
	StateWaiting State = iota

	// StateStreaming means the stream holds unused demand.
	StateStreaming

	// StateEnded means the stream delivered its terminal event.
	StateEnded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStreaming:
		return "streaming"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ended is the pending value of a stream in StateEnded.
const ended int64 = math.MinInt64

// Stream is the consumer-facing side of every stream in this package.
type Stream[T any] interface {
	// Subscribe registers onEvent for future events. onSubscribe receives
	// the new Subscription before Subscribe returns; no value is delivered
	// until demand is granted through it. Subscribing to an ended stream
	// delivers a single ErrLateSubscription terminal event.
	Subscribe(onSubscribe func(*Subscription), onEvent func(Event[T]))

	// Close ends the stream with normal completion.
	Close()

	// State returns the current lifecycle state.
	State() State
}

// streamHooks are the extension points derived streams override.
type streamHooks interface {
	// processAdditionalRequest runs after the stream's credit was raised.
	processAdditionalRequest(additional int64)

	// lastSubscriptionWasCanceled runs on the queue when a cancellation
	// empties the registry.
	lastSubscriptionWasCanceled()

	// finalizeStream runs on the queue right after the terminal event
	// was delivered.
	finalizeStream()
}

// subscriber is a registry entry. The subscription is held weakly so a
// consumer that drops it without cancelling is pruned on the next delivery.
type subscriber[T any] struct {
	sub    weak.Pointer[Subscription]
	notify func(Event[T])
}

// EventStream is a multicast, demand-driven stream. Every value is offered
// to all subscribers; a subscriber receives it only while it has demand, and
// the stream accepts values only while some subscriber does.
//
// The stream's credit and lifecycle share a single atomic field, pending:
// math.MinInt64 means ended, 0 means waiting, and a positive value is the
// remaining credit, Unbounded meaning unlimited.
type EventStream[T any] struct {
	cfg     Config
	queue   *Queue
	logger  *slog.Logger
	pending atomic.Int64
	hooks   streamHooks

	// subscribers is owned by queue.
	subscribers map[uuid.UUID]subscriber[T]
}

// NewEventStream creates a stream in StateWaiting.
func NewEventStream[T any](opts ...Option) *EventStream[T] {
	return newEventStream[T](newConfig(opts))
}

func newEventStream[T any](cfg Config) *EventStream[T] {
	s := &EventStream[T]{
		cfg:         cfg,
		queue:       cfg.Queue,
		logger:      cfg.Logger.With("stream", cfg.Name),
		subscribers: make(map[uuid.UUID]subscriber[T]),
	}
	s.hooks = s
	return s
}

// Name returns the stream name.
func (s *EventStream[T]) Name() string {
	return s.cfg.Name
}

// Queue returns the serial execution context of the stream.
func (s *EventStream[T]) Queue() *Queue {
	return s.queue
}

// Logger returns the stream logger, already carrying the stream name.
func (s *EventStream[T]) Logger() *slog.Logger {
	return s.logger
}

// Pending returns the remaining credit of the stream, 0 while waiting and a
// negative number once ended.
func (s *EventStream[T]) Pending() int64 {
	return s.pending.Load()
}

// State returns the current lifecycle state.
func (s *EventStream[T]) State() State {
	switch p := s.pending.Load(); {
	case p == ended:
		return StateEnded
	case p > 0:
		return StateStreaming
	default:
		return StateWaiting
	}
}

func (s *EventStream[T]) config() Config {
	return s.cfg
}

// Subscribe implements Stream.
func (s *EventStream[T]) Subscribe(onSubscribe func(*Subscription), onEvent func(Event[T])) {
	s.queue.Sync(func() {
		sub := newSubscription(s)
		if onSubscribe != nil {
			onSubscribe(sub)
		}

		if s.pending.Load() == ended {
			sub.invalidate()
			onEvent(Error[T](ErrLateSubscription))
			return
		}

		s.subscribers[sub.id] = subscriber[T]{sub: weak.Make(sub), notify: onEvent}
		s.observe(StreamEvent{Kind: StreamSubscribed, Subscribers: len(s.subscribers)})
	})
}

// Close dispatches normal completion. It is idempotent.
func (s *EventStream[T]) Close() {
	if s.pending.Load() == ended {
		return
	}
	s.queue.Async(func() {
		s.dispatch(Completion[T]())
	})
}

// dispatch delivers ev to the subscribers. It must run on the queue.
func (s *EventStream[T]) dispatch(ev Event[T]) {
	if ev.IsTerminal() {
		s.dispatchTerminal(ev)
		return
	}
	s.dispatchValue(ev)
}

func (s *EventStream[T]) dispatchValue(ev Event[T]) {
	for {
		p := s.pending.Load()
		if p <= 0 {
			// No demand: values are dropped, not buffered.
			if p != ended {
				s.logger.Debug("value dropped", "pending", p)
				s.observe(StreamEvent{Kind: StreamValueDropped, Subscribers: len(s.subscribers)})
			}
			return
		}
		if p == Unbounded || s.pending.CompareAndSwap(p, p-1) {
			break
		}
	}

	delivered := 0
	for id, entry := range s.subscribers {
		sub := entry.sub.Value()
		if sub == nil {
			delete(s.subscribers, id)
			s.logger.Debug("subscriber pruned", "subscription", id)
			continue
		}
		if sub.shouldNotify() {
			entry.notify(ev)
			delivered++
		}
	}

	switch {
	case len(s.subscribers) == 0:
		s.resetPending(0)
	case delivered == 0:
		s.correctPending()
	}

	if delivered > 0 {
		s.observe(StreamEvent{Kind: StreamValueDelivered, Subscribers: len(s.subscribers), Delivered: delivered})
	} else {
		s.observe(StreamEvent{Kind: StreamValueDropped, Subscribers: len(s.subscribers)})
	}
}

func (s *EventStream[T]) dispatchTerminal(ev Event[T]) {
	for {
		p := s.pending.Load()
		if p == ended {
			return
		}
		if s.pending.CompareAndSwap(p, ended) {
			break
		}
	}

	subscribers := s.subscribers
	s.subscribers = make(map[uuid.UUID]subscriber[T])
	for _, entry := range subscribers {
		if sub := entry.sub.Value(); sub != nil {
			sub.invalidate()
			entry.notify(ev)
		}
	}

	s.logger.Debug("stream ended", "reason", ev.Reason())
	s.observe(StreamEvent{Kind: StreamEnded, Subscribers: len(subscribers), Err: ev.Err()})
	s.hooks.finalizeStream()
}

// resetPending lowers a positive pending to target. It never touches an
// ended stream.
func (s *EventStream[T]) resetPending(target int64) {
	for {
		p := s.pending.Load()
		if p <= target {
			return
		}
		if s.pending.CompareAndSwap(p, target) {
			return
		}
	}
}

// correctPending lowers pending to the largest demand any live subscriber
// still holds, so credit nobody can use does not keep the stream streaming.
// Requests race with the scan: pending is only lowered from the value seen
// before scanning, and demand that arrived during the scan is restored.
func (s *EventStream[T]) correctPending() {
	for {
		p := s.pending.Load()
		remaining := s.maxRequested()
		if p <= remaining {
			return
		}
		if !s.pending.CompareAndSwap(p, remaining) {
			continue
		}
		if again := s.maxRequested(); again > remaining {
			s.raisePending(again)
		}
		return
	}
}

func (s *EventStream[T]) maxRequested() int64 {
	var remaining int64
	for _, entry := range s.subscribers {
		if sub := entry.sub.Value(); sub != nil {
			if r := sub.requested.Load(); r > remaining {
				remaining = r
			}
		}
	}
	return remaining
}

// raisePending lifts pending to target without forwarding demand: the
// credit was already requested upstream before it was lowered.
func (s *EventStream[T]) raisePending(target int64) {
	for {
		p := s.pending.Load()
		if p == ended || p >= target {
			return
		}
		if s.pending.CompareAndSwap(p, target) {
			return
		}
	}
}

// updateRequest raises the stream credit to requested. It is called by
// subscriptions from any goroutine.
func (s *EventStream[T]) updateRequest(requested int64) {
	if requested <= 0 {
		return
	}
	for {
		p := s.pending.Load()
		if p == ended || requested <= p {
			return
		}
		if s.pending.CompareAndSwap(p, requested) {
			additional := requested - p
			if requested == Unbounded {
				additional = Unbounded
			}
			s.observe(StreamEvent{Kind: StreamDemandRaised, Demand: additional})
			s.hooks.processAdditionalRequest(additional)
			return
		}
	}
}

// cancel removes sub from the registry.
func (s *EventStream[T]) cancel(sub *Subscription) {
	s.queue.Async(func() {
		entry, ok := s.subscribers[sub.id]
		if !ok {
			return
		}
		delete(s.subscribers, sub.id)
		s.logger.Debug("subscriber removed", "subscription", sub.id)
		s.observe(StreamEvent{Kind: StreamUnsubscribed, Subscribers: len(s.subscribers), Err: ErrObserverRemoved})

		if len(s.subscribers) == 0 {
			s.hooks.lastSubscriptionWasCanceled()
		}
		entry.notify(Error[T](ErrObserverRemoved))
	})
}

func (s *EventStream[T]) processAdditionalRequest(int64) {}

func (s *EventStream[T]) lastSubscriptionWasCanceled() {
	s.resetPending(0)
}

func (s *EventStream[T]) finalizeStream() {}

func (s *EventStream[T]) observe(e StreamEvent) {
	if s.cfg.Observer == nil {
		return
	}
	e.Stream = s.cfg.Name
	e.Time = time.Now()
	s.cfg.Observer.Observe(e)
}

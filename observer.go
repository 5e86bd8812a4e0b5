package petalstream

import "time"

// StreamEventKind identifies what happened to a stream.
type StreamEventKind string

const (
	// StreamSubscribed is emitted when a subscriber is registered.
	StreamSubscribed StreamEventKind = "stream.subscribed"

	// StreamUnsubscribed is emitted when a cancelled subscriber is removed.
	StreamUnsubscribed StreamEventKind = "stream.unsubscribed"

	// StreamDemandRaised is emitted when the stream's credit increases.
	StreamDemandRaised StreamEventKind = "stream.demand_raised"

	// StreamValueDelivered is emitted when a value reaches at least one subscriber.
	StreamValueDelivered StreamEventKind = "stream.value_delivered"

	// StreamValueDropped is emitted when a value is discarded for lack of demand.
	StreamValueDropped StreamEventKind = "stream.value_dropped"

	// StreamEnded is emitted once, when the stream reaches its terminal state.
	StreamEnded StreamEventKind = "stream.ended"
)

// String returns the string representation of the StreamEventKind.
func (k StreamEventKind) String() string {
	return string(k)
}

// StreamEvent describes a change observed on a stream.
type StreamEvent struct {
	// Kind identifies the event type.
	Kind StreamEventKind

	// Stream is the name of the stream.
	Stream string

	// Time is when the event occurred.
	Time time.Time

	// Subscribers is the number of registered subscribers at the time.
	Subscribers int

	// Delivered is the number of subscribers that received a value
	// (StreamValueDelivered only).
	Delivered int

	// Demand is the credit added (StreamDemandRaised only).
	Demand int64

	// Err is the terminal reason (StreamEnded and StreamUnsubscribed only).
	Err error
}

// Observer receives StreamEvents. Implementations must be safe for
// concurrent use: events of different streams arrive on different goroutines.
type Observer interface {
	Observe(e StreamEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e StreamEvent)

// Observe calls f(e).
func (f ObserverFunc) Observe(e StreamEvent) {
	f(e)
}

// MultiObserver fans StreamEvents out to several observers.
func MultiObserver(observers ...Observer) Observer {
	return ObserverFunc(func(e StreamEvent) {
		for _, o := range observers {
			if o != nil {
				o.Observe(e)
			}
		}
	})
}

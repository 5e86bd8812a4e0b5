package petalstream

import "errors"

var (
	// ErrStreamCompleted is the terminal reason of a stream that ended normally.
	ErrStreamCompleted = errors.New("petalstream: stream completed")

	// ErrLateSubscription is delivered to a subscriber that subscribes to a
	// stream which has already ended.
	ErrLateSubscription = errors.New("petalstream: subscribed to an ended stream")

	// ErrObserverRemoved is delivered to a subscriber's callback after its
	// subscription was cancelled and removed from the stream.
	ErrObserverRemoved = errors.New("petalstream: observer removed")
)

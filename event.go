package petalstream

import (
	"errors"
	"fmt"
)

// Event is a single item flowing through a stream: either a value or a
// terminal signal. Terminal events carry a reason, which is
// ErrStreamCompleted for normal completion or the error that ended the stream.
type Event[T any] struct {
	value  T
	reason error
}

// Value creates a value event.
func Value[T any](v T) Event[T] {
	return Event[T]{value: v}
}

// Error creates a terminal event carrying err. A nil err is treated as
// normal completion.
func Error[T any](err error) Event[T] {
	if err == nil {
		err = ErrStreamCompleted
	}
	return Event[T]{reason: err}
}

// Completion creates a normal-completion terminal event.
func Completion[T any]() Event[T] {
	return Event[T]{reason: ErrStreamCompleted}
}

// IsValue reports whether the event carries a value.
func (e Event[T]) IsValue() bool {
	return e.reason == nil
}

// IsTerminal reports whether the event ends the stream.
func (e Event[T]) IsTerminal() bool {
	return e.reason != nil
}

// IsCompletion reports whether the event is a normal completion.
func (e Event[T]) IsCompletion() bool {
	return errors.Is(e.reason, ErrStreamCompleted)
}

// Get returns the value, or the terminal reason as an error.
func (e Event[T]) Get() (T, error) {
	return e.value, e.reason
}

// Reason returns the terminal reason, or nil for value events.
func (e Event[T]) Reason() error {
	return e.reason
}

// Err returns the error that ended the stream. It returns nil for value
// events and for normal completion.
func (e Event[T]) Err() error {
	if e.reason == nil || e.IsCompletion() {
		return nil
	}
	return e.reason
}

// Equal compares two events. Values are compared with == when T is
// comparable at runtime; terminal events are compared by reason text, so two
// distinct errors with the same message are considered equal.
func (e Event[T]) Equal(other Event[T]) (equal bool) {
	if e.IsTerminal() || other.IsTerminal() {
		if e.IsTerminal() != other.IsTerminal() {
			return false
		}
		return e.reason.Error() == other.reason.Error()
	}
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return any(e.value) == any(other.value)
}

// String implements fmt.Stringer.
func (e Event[T]) String() string {
	switch {
	case e.IsValue():
		return fmt.Sprintf("value(%v)", e.value)
	case e.IsCompletion():
		return "completed"
	default:
		return fmt.Sprintf("error(%v)", e.reason)
	}
}

// MapEvent transforms the value of ev. Terminal events pass through
// unchanged. An error returned by transform becomes a terminal event.
func MapEvent[T, U any](ev Event[T], transform func(T) (U, error)) Event[U] {
	if ev.IsTerminal() {
		return Error[U](ev.reason)
	}
	u, err := transform(ev.value)
	if err != nil {
		return Error[U](err)
	}
	return Value(u)
}

// FlatMapEvent transforms the value of ev into another event. Terminal
// events pass through unchanged.
func FlatMapEvent[T, U any](ev Event[T], transform func(T) Event[U]) Event[U] {
	if ev.IsTerminal() {
		return Error[U](ev.reason)
	}
	return transform(ev.value)
}

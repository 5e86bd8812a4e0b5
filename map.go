package petalstream

// Map returns a stream that applies transform to every upstream value. An
// error returned by transform ends the stream with that error.
func Map[T, U any](upstream Stream[T], transform func(T) (U, error), opts ...Option) *SubStream[T, U] {
	return compactMap(upstream, "map", func(v T) (U, bool, error) {
		u, err := transform(v)
		return u, true, err
	}, opts)
}

// CompactMap returns a stream that applies transform to every upstream value
// and forwards the results for which transform reports ok. Every discarded
// value is replaced by a request for one more upstream event, so downstream
// demand is still satisfied.
func CompactMap[T, U any](upstream Stream[T], transform func(T) (U, bool, error), opts ...Option) *SubStream[T, U] {
	return compactMap(upstream, "compact_map", transform, opts)
}

// Filter returns a stream that forwards the upstream values for which
// predicate returns true.
func Filter[T any](upstream Stream[T], predicate func(T) bool, opts ...Option) *SubStream[T, T] {
	return compactMap(upstream, "filter", func(v T) (T, bool, error) {
		return v, predicate(v), nil
	}, opts)
}

func compactMap[T, U any](upstream Stream[T], kind string, transform func(T) (U, bool, error), opts []Option) *SubStream[T, U] {
	s := newSubStream[T, U](derivedConfig(upstream, kind, opts))
	s.handle = func(ev Event[T]) {
		if ev.IsTerminal() {
			s.dispatch(Error[U](ev.Reason()))
			return
		}
		u, ok, err := transform(ev.value)
		switch {
		case err != nil:
			s.dispatch(Error[U](err))
		case ok:
			s.dispatch(Value(u))
		default:
			s.requestUpstream(1)
		}
	}
	s.attach(upstream)
	return s
}

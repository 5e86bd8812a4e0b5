package petalstream

import (
	"fmt"
	"strconv"
)

// Split subscribes n independent streams to upstream. Each branch receives
// every upstream value it has demand for and manages its demand on its own;
// upstream keeps producing while any branch still wants values.
func Split[T any](upstream Stream[T], n int, opts ...Option) []*SubStream[T, T] {
	if n < 0 {
		panic(fmt.Sprintf("petalstream: negative split count %d", n))
	}

	branches := make([]*SubStream[T, T], n)
	for i := range branches {
		s := newSubStream[T, T](derivedConfig(upstream, "split"+strconv.Itoa(i), opts))
		s.handle = s.dispatch
		s.attach(upstream)
		branches[i] = s
	}
	return branches
}

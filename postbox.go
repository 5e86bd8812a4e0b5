package petalstream

// PostBox is a stream that external code pushes events into. Posted values
// are delivered only while subscribers have demand; anything posted without
// demand is dropped.
type PostBox[T any] struct {
	*EventStream[T]

	onDemand func(additional int64)
}

// NewPostBox creates an empty PostBox.
func NewPostBox[T any](opts ...Option) *PostBox[T] {
	return NewDemandPostBox[T](nil, opts...)
}

// NewDemandPostBox creates a PostBox that calls onDemand whenever its
// credit increases, so a producer can post only while values are wanted.
// onDemand may be called from any goroutine and must not block.
func NewDemandPostBox[T any](onDemand func(additional int64), opts ...Option) *PostBox[T] {
	p := &PostBox[T]{
		EventStream: newEventStream[T](newConfig(opts)),
		onDemand:    onDemand,
	}
	p.hooks = p
	return p
}

// Post sends a value.
func (p *PostBox[T]) Post(v T) {
	p.PostEvent(Value(v))
}

// PostError ends the stream with err.
func (p *PostBox[T]) PostError(err error) {
	p.PostEvent(Error[T](err))
}

// PostEvent sends ev. It does nothing once the stream has ended.
func (p *PostBox[T]) PostEvent(ev Event[T]) {
	if p.State() == StateEnded {
		return
	}
	p.queue.Async(func() {
		p.dispatch(ev)
	})
}

func (p *PostBox[T]) processAdditionalRequest(additional int64) {
	if p.onDemand != nil {
		p.onDemand(additional)
	}
}

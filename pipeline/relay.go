package pipeline

import (
	"sync"

	"github.com/petal-labs/petalstream"
)

// relay runs a fan-out stage without losing values.
//
// Merging hands the same demand to every branch or inner stream, so a
// fan-out stage produces up to factor values per value it was asked for and
// drops whatever exceeds its credit. The relay instead subscribes to the
// stage with unbounded demand, meters upstream values into it through the
// gate, and buffers the stage output until downstream asks for it. Upstream
// values are requested only while their output fits in limit slots.
type relay struct {
	factor int64
	limit  int64

	gate  *petalstream.PostBox[int64]
	stage petalstream.Stream[int64]
	out   *petalstream.PostBox[int64]

	upSub    *petalstream.Subscription
	stageSub *petalstream.Subscription

	mu       sync.Mutex
	buf      []int64
	reserved int64 // slots held for stage output not yet received
	credit   int64
	started  bool
	done     *petalstream.Event[int64]
}

// newRelay feeds upstream into the stage returned by build. factor is the
// exact number of values the stage emits per upstream value; window is the
// number of upstream values whose output may be buffered at once.
func newRelay(
	upstream petalstream.Stream[int64],
	factor, window int64,
	name string,
	opts []petalstream.Option,
	build func(petalstream.Stream[int64]) petalstream.Stream[int64],
) *relay {
	r := &relay{
		factor: factor,
		limit:  factor * window,
	}
	opts = opts[:len(opts):len(opts)]
	r.gate = petalstream.NewPostBox[int64](append(opts, petalstream.WithName(name))...)
	r.out = petalstream.NewDemandPostBox[int64](r.onDemand, append(opts, petalstream.WithName(name+".out"))...)
	r.stage = build(r.gate)

	r.stage.Subscribe(
		func(sub *petalstream.Subscription) {
			r.stageSub = sub
			sub.RequestAll()
		},
		r.onStage,
	)
	upstream.Subscribe(
		func(sub *petalstream.Subscription) {
			r.upSub = sub
		},
		r.gate.PostEvent,
	)
	return r
}

// Stream is the lossless output of the stage.
func (r *relay) Stream() petalstream.Stream[int64] { return r.out }

// start lets values flow. The stage must have handed its demand to the gate
// before the first upstream value is posted, or a branch without demand yet
// would miss it.
func (r *relay) start() {
	if q, ok := r.stage.(interface{ Queue() *petalstream.Queue }); ok {
		q.Queue().Sync(func() {})
	}

	r.mu.Lock()
	r.started = true
	n := r.permitLocked()
	r.mu.Unlock()
	r.request(n)
}

func (r *relay) stop() {
	r.upSub.Cancel()
	r.stageSub.Cancel()
}

func (r *relay) onDemand(additional int64) {
	r.mu.Lock()
	r.credit = saturatingAdd(r.credit, additional)
	r.drainLocked()
	n := r.permitLocked()
	r.mu.Unlock()
	r.request(n)
}

func (r *relay) onStage(ev petalstream.Event[int64]) {
	if ev.IsValue() {
		v, _ := ev.Get()
		r.mu.Lock()
		if r.reserved > 0 {
			r.reserved--
		}
		r.buf = append(r.buf, v)
		r.drainLocked()
		n := r.permitLocked()
		r.mu.Unlock()
		r.request(n)
		return
	}

	if ev.Err() != nil {
		r.mu.Lock()
		r.buf = nil
		r.mu.Unlock()
		r.out.PostEvent(ev)
		r.upSub.Cancel()
		return
	}

	// Completion waits for the buffered values.
	r.mu.Lock()
	r.done = &ev
	r.drainLocked()
	r.mu.Unlock()
}

// drainLocked posts buffered values while downstream has credit.
func (r *relay) drainLocked() {
	for r.credit > 0 && len(r.buf) > 0 {
		r.out.Post(r.buf[0])
		r.buf = r.buf[1:]
		if r.credit != petalstream.Unbounded {
			r.credit--
		}
	}
	if r.done != nil && len(r.buf) == 0 {
		r.out.PostEvent(*r.done)
		r.done = nil
	}
}

// permitLocked reserves room for as many upstream values as fit and returns
// how many to request.
func (r *relay) permitLocked() int64 {
	if !r.started || r.done != nil {
		return 0
	}
	n := (r.limit - int64(len(r.buf)) - r.reserved) / r.factor
	if n <= 0 {
		return 0
	}
	r.reserved += n * r.factor
	return n
}

func (r *relay) request(n int64) {
	if n > 0 {
		r.upSub.Request(n)
	}
}

func saturatingAdd(a, b int64) int64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return petalstream.Unbounded
}

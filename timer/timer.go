// Package timer provides streams of tick times that only tick while a
// subscriber wants them.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/petal-labs/petalstream"
)

// Timer is a stream of tick times. A tick that comes due while no
// subscriber has demand is skipped, and the timer then waits for demand
// before scheduling the next one.
type Timer struct {
	*petalstream.PostBox[time.Time]

	next func(time.Time) time.Time
	wake chan struct{}

	mu      sync.Mutex
	started time.Time
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New returns a timer ticking every interval once started.
func New(interval time.Duration, opts ...petalstream.Option) *Timer {
	if interval <= 0 {
		panic(fmt.Sprintf("timer: non-positive interval %v", interval))
	}
	return newTimer(func(t time.Time) time.Time {
		return t.Add(interval)
	}, opts)
}

// NewCron returns a timer ticking on a standard five-field cron schedule,
// evaluated in UTC.
func NewCron(expr string, opts ...petalstream.Option) (*Timer, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return newTimer(func(t time.Time) time.Time {
		return schedule.Next(t.UTC())
	}, opts), nil
}

func newTimer(next func(time.Time) time.Time, opts []petalstream.Option) *Timer {
	t := &Timer{
		next:   next,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	t.PostBox = petalstream.NewDemandPostBox[time.Time](t.demandRaised, opts...)
	return t
}

// Start begins ticking and returns the time the timer was started. Later
// calls return the original start time.
func (t *Timer) Start() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started.IsZero() || t.stopped {
		return t.started
	}
	t.started = time.Now()
	go t.run(t.started)
	return t.started
}

// Stop stops the timer and completes the stream. It is safe to call Stop
// multiple times.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	running := !t.started.IsZero()
	t.mu.Unlock()

	if running {
		close(t.stopCh)
		<-t.doneCh
	}
	t.Close()
}

func (t *Timer) demandRaised(int64) {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Timer) run(from time.Time) {
	defer close(t.doneCh)

	timer := time.NewTimer(time.Until(t.next(from)))
	defer timer.Stop()

	for {
		select {
		case now := <-timer.C:
			if t.State() == petalstream.StateEnded {
				return
			}
			if t.Pending() > 0 {
				t.Post(now)
			} else {
				t.Logger().Debug("tick skipped, waiting for demand", "due", now)
				select {
				case <-t.wake:
					now = time.Now()
				case <-t.stopCh:
					return
				}
			}
			timer.Reset(time.Until(t.next(now)))
		case <-t.stopCh:
			return
		}
	}
}

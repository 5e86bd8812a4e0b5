package petalstream

import "sync"

// Queue is a serial execution context. Tasks submitted to a Queue run one at
// a time, in submission order, on a worker goroutine that is started when
// work arrives and exits once the queue drains.
//
// Every stream owns a Queue; several streams may share one via WithQueue.
type Queue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// NewQueue creates an idle queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Async schedules fn to run on the queue and returns immediately.
func (q *Queue) Async(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

// Sync runs fn on the queue and waits for it to finish. Calling Sync from a
// task already running on the same queue deadlocks.
func (q *Queue) Sync(fn func()) {
	done := make(chan struct{})
	q.Async(func() {
		defer close(done)
		fn()
	})
	<-done
}

// drain runs queued tasks until none are left.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
	}
}

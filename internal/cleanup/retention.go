package cleanup

import (
	"sync"
	"time"
)

// Retention owns the deferred per-job deletions scheduled after a job is ready.
// Each timer fires once; Stop cancels whatever has not fired yet.
type Retention struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewRetention creates an empty timer set.
func NewRetention() *Retention {
	return &Retention{timers: make(map[string]*time.Timer)}
}

// Schedule runs fn after delay. Scheduling the same key again replaces the
// pending timer. fn must tolerate the job or file already being gone.
func (r *Retention) Schedule(key string, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if existing, ok := r.timers[key]; ok && existing.Stop() {
		r.wg.Done()
	}

	r.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer r.wg.Done()
		r.mu.Lock()
		if r.timers[key] == timer {
			delete(r.timers, key)
		}
		r.mu.Unlock()
		fn()
	})
	r.timers[key] = timer
}

// Pending returns how many timers have not fired yet.
func (r *Retention) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every pending timer and waits for callbacks already running.
// Later calls to Schedule are ignored.
func (r *Retention) Stop() {
	r.mu.Lock()
	r.stopped = true
	for key, timer := range r.timers {
		if timer.Stop() {
			r.wg.Done()
		}
		delete(r.timers, key)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

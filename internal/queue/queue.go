package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
)

// Task is the unit of work admitted by the queue. It must report its own
// outcome; the queue only tracks when it finishes.
type Task func(ctx context.Context)

// Tracker receives waiting-list positions. It is called with the queue lock
// held, so implementations must not call back into the Queue.
type Tracker interface {
	Queued(jobID string, position int, estimatedWait string)
}

// Observer is notified after every change of the active or waiting set.
type Observer interface {
	QueueChanged(active, waiting int)
}

// Admission is the outcome of Enqueue.
type Admission struct {
	Admitted      bool
	Position      int
	EstimatedWait string
}

// Options configures a Queue.
type Options struct {
	MaxConcurrent       int
	EstimatedJobSeconds int
	Tracker             Tracker
	Observer            Observer
	Logger              *slog.Logger
}

type entry struct {
	jobID string
	task  Task
}

// Queue is a bounded-concurrency admission controller with a FIFO waiting list.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	unitSeconds   int
	active        map[string]struct{}
	waiting       []entry
	tracker       Tracker
	observer      Observer
	logger        *slog.Logger
	ctx           context.Context
	wg            sync.WaitGroup
}

// New creates a queue. Tasks receive ctx; the queue never cancels it.
func New(ctx context.Context, opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.EstimatedJobSeconds <= 0 {
		opts.EstimatedJobSeconds = DefaultEstimatedJobSeconds
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Queue{
		maxConcurrent: opts.MaxConcurrent,
		unitSeconds:   opts.EstimatedJobSeconds,
		active:        make(map[string]struct{}),
		tracker:       opts.Tracker,
		observer:      opts.Observer,
		logger:        logging.Component(opts.Logger, "queue"),
		ctx:           ctx,
	}
}

// Enqueue admits the task immediately when a slot is free, otherwise appends
// it to the waiting list and reports its 1-based position.
func (q *Queue) Enqueue(jobID string, task Task) Admission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.active) < q.maxConcurrent {
		q.startLocked(jobID, task)
		q.notifyLocked()
		q.logger.Info("job admitted", logging.String("job_id", jobID), logging.Int("active", len(q.active)))
		return Admission{Admitted: true}
	}

	q.waiting = append(q.waiting, entry{jobID: jobID, task: task})
	position := len(q.waiting)
	wait := EstimateWait(position, q.unitSeconds)
	if q.tracker != nil {
		q.tracker.Queued(jobID, position, wait)
	}
	q.notifyLocked()
	q.logger.Info("job queued",
		logging.String("job_id", jobID),
		logging.Int("position", position),
		logging.String("estimated_wait", wait),
	)
	return Admission{Position: position, EstimatedWait: wait}
}

// startLocked marks the job active and runs it. Whatever happens inside the
// task, finish runs and frees the slot.
func (q *Queue) startLocked(jobID string, task Task) {
	q.active[jobID] = struct{}{}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.finish(jobID)
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("task panic",
					logging.String("job_id", jobID),
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())),
				)
			}
		}()
		task(q.ctx)
	}()
}

// finish releases the slot, admits the head waiter and republishes the
// positions of everyone still waiting.
func (q *Queue) finish(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, jobID)

	if len(q.waiting) > 0 && len(q.active) < q.maxConcurrent {
		head := q.waiting[0]
		q.waiting[0] = entry{}
		q.waiting = q.waiting[1:]
		q.startLocked(head.jobID, head.task)
		q.logger.Info("queued job admitted", logging.String("job_id", head.jobID), logging.Int("waiting", len(q.waiting)))
	}

	if q.tracker != nil {
		for i, e := range q.waiting {
			q.tracker.Queued(e.jobID, i+1, EstimateWait(i+1, q.unitSeconds))
		}
	}
	q.notifyLocked()
}

func (q *Queue) notifyLocked() {
	if q.observer != nil {
		q.observer.QueueChanged(len(q.active), len(q.waiting))
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	MaxConcurrent int      `json:"maxConcurrent"`
	Active        int      `json:"active"`
	Waiting       []string `json:"waiting"`
}

// Stats returns the current occupancy; Waiting is in admission order.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	waiting := make([]string, len(q.waiting))
	for i, e := range q.waiting {
		waiting[i] = e.jobID
	}
	return Stats{MaxConcurrent: q.maxConcurrent, Active: len(q.active), Waiting: waiting}
}

// Wait blocks until every admitted and queued task has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

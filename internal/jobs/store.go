package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

var (
	// ErrNotFound is returned for ids that were never created or already deleted.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when an update breaks the status machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store keeps job records in memory. It is safe for concurrent use and never
// blocks on I/O.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	// started holds ids that have received at least one Update.
	started map[string]struct{}
	now     func() time.Time
	newID   func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:    make(map[string]*Job),
		started: make(map[string]struct{}),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new job in the Validating state with zero progress.
func (s *Store) Create(req Request) Job {
	now := s.now().UTC()
	job := &Job{
		ID:         s.newID(),
		SourceURL:  req.SourceURL,
		ContentKey: req.ContentKey,
		Quality:    req.Quality,
		Status:     types.StatusValidating,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *job, nil
}

// Update applies mutate to a copy of the job and stores the result atomically.
// Identity fields are restored after mutate runs, progress never moves
// backwards, and the status must follow the transition table. A rejected
// update leaves the record untouched.
func (s *Store) Update(id string, mutate func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := *current
	mutate(&next)

	next.ID = current.ID
	next.SourceURL = current.SourceURL
	next.ContentKey = current.ContentKey
	next.Quality = current.Quality
	next.CreatedAt = current.CreatedAt

	if next.Status != current.Status || next.Status.Terminal() {
		if !current.Status.CanTransition(next.Status) {
			return *current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
		}
	}
	if next.Status == types.StatusReady && next.ArtifactPath == "" {
		return *current, fmt.Errorf("%w: ready without artifact", ErrInvalidTransition)
	}
	if next.Progress < current.Progress {
		next.Progress = current.Progress
	}
	next.normalize()
	next.UpdatedAt = s.now().UTC()

	s.jobs[id] = &next
	s.started[id] = struct{}{}
	return next, nil
}

// MarkQueued records a waiting-list position. A freshly created job may enter
// Queued; a job already Queued only has its position refreshed. Any job whose
// task has begun updating it is rejected.
func (s *Store) MarkQueued(id string, position int, estimatedWait string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, started := s.started[id]
	fresh := current.Status == types.StatusValidating && !started
	if current.Status != types.StatusQueued && !fresh {
		return *current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, types.StatusQueued)
	}

	next := *current
	next.Status = types.StatusQueued
	next.QueuePosition = position
	next.EstimatedWait = estimatedWait
	next.normalize()
	next.UpdatedAt = s.now().UTC()
	s.jobs[id] = &next
	return next, nil
}

// Delete removes the job. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	delete(s.started, id)
	s.mu.Unlock()
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CountByStatus tallies the stored jobs per status.
func (s *Store) CountByStatus() map[types.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[types.Status]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

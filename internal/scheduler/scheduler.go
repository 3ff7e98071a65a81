package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// OnJobDue is invoked sequentially for every job due at a tick. It is
// expected to acquire the agent mutex itself (internal/agentlock),
// run the agent loop with sessionKey "cron_<jobID>" and job.Message as
// user content, and forward the reply to whatever outbound channel is
// configured. An error is recorded as the job's lastStatus but never
// stops the scheduler.
type OnJobDue func(ctx context.Context, job *Job) error

// Scheduler drives Store's jobs with a single pending timer armed for
// the soonest enabled NextRunAtMs, rather than one timer per job.
type Scheduler struct {
	logger *slog.Logger
	store  *Store
	onDue  OnJobDue

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New returns a Scheduler over store. Call Start to arm the first
// timer.
func New(logger *slog.Logger, store *Store, onDue OnJobDue) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, store: store, onDue: onDue}
}

// Start arms the timer for the soonest enabled job, if any.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.rearmLocked()
}

// Stop cancels any pending timer arming. A tick already in flight is
// allowed to finish firing its due jobs; no further timer is armed
// after it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// rearmLocked must be called with s.mu held. It computes the soonest
// enabled NextRunAtMs across every job and arms a single timer for it,
// or arms nothing if there are no enabled jobs with a future run.
func (s *Scheduler) rearmLocked() {
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	jobs := s.store.List()
	var soonest int64
	found := false
	for _, j := range jobs {
		if !j.Enabled || j.NextRunAtMs <= 0 {
			continue
		}
		if !found || j.NextRunAtMs < soonest {
			soonest = j.NextRunAtMs
			found = true
		}
	}
	if !found {
		return
	}

	delay := time.Until(time.UnixMilli(soonest))
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.onTick)
}

// onTick fires every due job sequentially, then re-arms.
func (s *Scheduler) onTick() {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	jobs := s.store.List()
	var due []*Job
	for _, j := range jobs {
		if j.Enabled && j.NextRunAtMs > 0 && j.NextRunAtMs <= now {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, k int) bool { return due[i].NextRunAtMs < due[k].NextRunAtMs })

	for _, job := range due {
		s.fire(job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rearmLocked()
}

// fire invokes onDue for job and updates its run bookkeeping.
func (s *Scheduler) fire(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	if s.onDue != nil {
		err = s.onDue(ctx, job)
	}

	job.LastRunAtMs = time.Now().UnixMilli()
	if err != nil {
		job.LastStatus = StatusError
		s.logger.Error("scheduled job failed", "id", job.ID, "error", err)
	} else {
		job.LastStatus = StatusOK
	}

	if job.DeleteAfterRun {
		if err := s.store.Remove(job.ID); err != nil {
			s.logger.Error("failed to remove one-shot job", "id", job.ID, "error", err)
		}
		return
	}

	if job.Kind == KindAt {
		// One-shot job kept around (not DeleteAfterRun): it has fired
		// and has no further run.
		job.NextRunAtMs = 0
	} else {
		job.RecomputeNextRun()
	}
	if err := s.store.Persist(); err != nil {
		s.logger.Error("failed to persist job after firing", "id", job.ID, "error", err)
	}
}

// Stats reports a snapshot of scheduler state for introspection.
func (s *Scheduler) Stats() map[string]any {
	jobs := s.store.List()
	enabled := 0
	for _, j := range jobs {
		if j.Enabled {
			enabled++
		}
	}
	s.mu.Lock()
	armed := s.timer != nil
	s.mu.Unlock()
	return map[string]any{
		"total_jobs":   len(jobs),
		"enabled_jobs": enabled,
		"timer_armed":  armed,
	}
}

// ListJobs returns every job currently in the store.
func (s *Scheduler) ListJobs() []*Job { return s.store.List() }

// AddJob adds job to the store and re-arms the timer if job's next
// run is sooner than the one currently armed.
func (s *Scheduler) AddJob(job *Job) error {
	if err := s.store.Add(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rearmLocked()
	return nil
}

// RemoveJob deletes a job by ID and re-arms.
func (s *Scheduler) RemoveJob(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rearmLocked()
	return nil
}

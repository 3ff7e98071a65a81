package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, onDue OnJobDue) (*Scheduler, *Store) {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	return New(nil, store, onDue), store
}

func TestScheduler_FiresDueJobAndRecomputesEvery(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	done := make(chan struct{}, 1)

	onDue := func(ctx context.Context, job *Job) error {
		mu.Lock()
		fired = append(fired, job.ID)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewEveryJob("recurring", "Recurring", "hi", 50*time.Millisecond)
	job.NextRunAtMs = time.Now().Add(10 * time.Millisecond).UnixMilli()
	store.Add(job)

	sched.Start()
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) == 0 || fired[0] != "recurring" {
		t.Fatalf("expected job 'recurring' to fire, got %+v", fired)
	}

	reloaded := store.List()[0]
	if reloaded.LastStatus != StatusOK {
		t.Errorf("expected lastStatus ok, got %q", reloaded.LastStatus)
	}
	if reloaded.NextRunAtMs <= reloaded.LastRunAtMs {
		t.Error("expected the every job's next run to be recomputed forward after firing")
	}
}

func TestScheduler_DeleteAfterRunRemovesJob(t *testing.T) {
	done := make(chan struct{}, 1)
	onDue := func(ctx context.Context, job *Job) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewAtJob("oneshot", "Oneshot", "hi", time.Now().Add(10*time.Millisecond), true)
	store.Add(job)

	sched.Start()
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to fire")
	}

	// Give the scheduler a moment to complete its post-fire removal.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(store.List()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("expected the one-shot job to be removed after firing, store still has %d jobs", len(store.List()))
}

func TestScheduler_AtJobWithoutDeleteHasNoFurtherRun(t *testing.T) {
	done := make(chan struct{}, 1)
	onDue := func(ctx context.Context, job *Job) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewAtJob("keep", "Keep", "hi", time.Now().Add(10*time.Millisecond), false)
	store.Add(job)

	sched.Start()
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to fire")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		jobs := store.List()
		if len(jobs) == 1 && jobs[0].NextRunAtMs == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected the non-deleted 'at' job to end with NextRunAtMs = 0")
}

func TestScheduler_FailingJobRecordsErrorStatusButKeepsRunning(t *testing.T) {
	done := make(chan struct{}, 1)
	onDue := func(ctx context.Context, job *Job) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("boom")
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewAtJob("failing", "Failing", "hi", time.Now().Add(10*time.Millisecond), false)
	store.Add(job)

	sched.Start()
	defer sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to fire")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		jobs := store.List()
		if len(jobs) == 1 && jobs[0].LastStatus == StatusError {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected lastStatus to be recorded as error")
}

func TestScheduler_DisabledJobNeverFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	onDue := func(ctx context.Context, job *Job) error {
		fired <- struct{}{}
		return nil
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewEveryJob("disabled", "Disabled", "hi", 20*time.Millisecond)
	job.Enabled = false
	job.NextRunAtMs = time.Now().Add(5 * time.Millisecond).UnixMilli()
	store.Add(job)

	sched.Start()
	defer sched.Stop()

	select {
	case <-fired:
		t.Fatal("a disabled job must never fire")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestScheduler_StopPreventsFurtherFirings(t *testing.T) {
	var mu sync.Mutex
	count := 0
	onDue := func(ctx context.Context, job *Job) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	sched, store := newTestScheduler(t, onDue)
	job := NewEveryJob("ticking", "Ticking", "hi", 20*time.Millisecond)
	job.NextRunAtMs = time.Now().Add(5 * time.Millisecond).UnixMilli()
	store.Add(job)

	sched.Start()
	time.Sleep(60 * time.Millisecond)
	sched.Stop()

	mu.Lock()
	afterStop := count
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != afterStop {
		t.Errorf("expected no firings after Stop, count went from %d to %d", afterStop, count)
	}
}

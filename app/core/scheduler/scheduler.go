package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrJobExists      = errors.New("scheduler: job already exists")
	ErrSchedulerStart = errors.New("scheduler: already started")
)

// JobSpec is one recurring maintenance job. Jobs must be idempotent:
// the scheduler may run them concurrently with in-flight requests.
type JobSpec struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Run        func(context.Context) error
}

type JobStatus struct {
	Name         string
	Runs         int64
	LastEndAt    time.Time
	LastError    string
	LastDuration time.Duration
}

// Scheduler runs the registered jobs on their intervals until stopped.
// Registration happens before Start; the job set is fixed afterwards.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]JobSpec
	status  map[string]JobStatus
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]JobSpec),
		status: make(map[string]JobStatus),
	}
}

func (s *Scheduler) Register(job JobSpec) error {
	if job.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if job.Interval <= 0 {
		return errors.New("scheduler: job interval must be greater than zero")
	}
	if job.Run == nil {
		return errors.New("scheduler: job run callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStart
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	s.jobs[job.Name] = job
	s.status[job.Name] = JobStatus{Name: job.Name}
	return nil
}

func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerStart
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.started = true
	jobs := make([]JobSpec, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	return nil
}

func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	cancel()
	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timeout after %s", timeout)
	}
}

func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		items = append(items, st)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Scheduler) runLoop(ctx context.Context, job JobSpec) {
	defer s.wg.Done()
	if job.RunOnStart {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(parent context.Context, job JobSpec) {
	start := time.Now()
	runCtx := parent
	cancel := func() {}
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(parent, job.Timeout)
	}
	defer cancel()

	err := job.Run(runCtx)
	end := time.Now()

	s.mu.Lock()
	st := s.status[job.Name]
	st.Runs++
	st.LastEndAt = end
	st.LastDuration = end.Sub(start)
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
	s.status[job.Name] = st
	s.mu.Unlock()

	if err != nil {
		log.Printf("[Scheduler] job=%s failed: %v", job.Name, err)
	}
}

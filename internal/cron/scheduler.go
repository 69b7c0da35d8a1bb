package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by RunNow for an unregistered job name.
	ErrUnknownJob = errors.New("cron: unknown job")

	// ErrJobRunning is returned by RunNow while a run of the job is in flight.
	ErrJobRunning = errors.New("cron: job already running")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule reports whether expr is a valid 5-field cron expression.
func ParseSchedule(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

func parseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// JobStatus reports the schedule and last outcome of a job.
type JobStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Next         time.Time     `json:"next"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration_ns,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// entry is a registered job with its run state. lock is held for the
// whole run; mu guards the bookkeeping fields.
type entry struct {
	job      Job
	schedule cron.Schedule
	lock     sync.Mutex

	mu     sync.Mutex
	status JobStatus
}

// Scheduler runs jobs on their cron schedules. A job never runs twice at
// once: a tick that finds the previous run still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
	cron    *cron.Cron
	cancel  context.CancelFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// RegisterJob adds a job. Its schedule is parsed here so a bad expression
// fails at configuration time, not at Start.
func (s *Scheduler) RegisterJob(j Job) error {
	sched, err := parseSchedule(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[j.Name()]; exists {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	e := &entry{
		job:      j,
		schedule: sched,
		status:   JobStatus{Name: j.Name(), Schedule: j.Schedule()},
	}
	s.byName[j.Name()] = e
	s.entries = append(s.entries, e)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Status returns a snapshot of every job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	now := s.now()
	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := e.status
		e.mu.Unlock()
		st.Next = e.schedule.Next(now)
		out = append(out, st)
	}
	return out
}

// Start begins running the registered jobs on their schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New(cron.WithParser(parser))
	for _, e := range s.entries {
		s.cron.Schedule(e.schedule, cron.FuncJob(func() {
			if err := s.run(ctx, e); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
			}
		}))
	}
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// RunNow runs a job immediately on the calling goroutine, outside its
// schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.lock.TryLock() {
		return ErrJobRunning
	}
	defer e.lock.Unlock()

	name := e.job.Name()
	start := s.now()
	e.mu.Lock()
	e.status.Running = true
	e.mu.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	elapsed := s.now().Sub(start)

	e.mu.Lock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastRun = start
	e.status.LastDuration = elapsed
	e.status.LastError = ""
	if err != nil {
		e.status.Failures++
		e.status.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", name, "duration", elapsed)
	return nil
}

// Stop halts the schedule and waits for in-flight runs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}

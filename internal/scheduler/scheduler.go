// Package scheduler runs the service's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of scheduled work
type Job interface {
	Name() string
	// Schedule is a cron expression with a leading seconds field
	Schedule() string
	Run(ctx context.Context) error
}

// JobResult records one execution of a job
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler owns the cron runner and the registered jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]Job
	last map[string]JobResult

	location   *time.Location
	maxRetries int
	retryDelay time.Duration
	jobTimeout time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetries sets how many times a failed run is retried and the pause
// between attempts
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// WithJobTimeout bounds each attempt
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.jobTimeout = d
	}
}

// WithLocation reads job schedules in loc instead of the local zone
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:        log.With().Str("component", "scheduler").Logger(),
		jobs:       make(map[string]Job),
		last:       make(map[string]JobResult),
		location:   time.Local,
		maxRetries: 2,
		retryDelay: time.Minute,
		jobTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return s
}

// Location returns the zone schedules are read in
func (s *Scheduler) Location() *time.Location {
	return s.cron.Location()
}

// AddJob registers a job on its schedule
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(context.Background(), job)
	}); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.log.Info().Str("job", name).Str("schedule", job.Schedule()).Msg("Job added to scheduler")
	return nil
}

// Start starts the cron runner in the background
func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", len(s.Jobs())).Str("location", s.Location().String()).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop stops the runner and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.log.Info().Msg("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunNow runs a registered job synchronously, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return s.runJob(ctx, job), nil
}

// Jobs returns the registered job names in sorted order
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastResult returns the most recent result of a job
func (s *Scheduler) LastResult(name string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[name]
	return r, ok
}

func (s *Scheduler) runJob(ctx context.Context, job Job) JobResult {
	name := job.Name()
	log := s.log.With().Str("job", name).Logger()
	result := JobResult{JobName: name, StartTime: time.Now()}

	log.Info().Msg("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts = attempt + 1

		runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
		lastErr = job.Run(runCtx)
		cancel()
		if lastErr == nil {
			result.Success = true
			break
		}

		log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("Job execution failed")
		if attempt == s.maxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.retryDelay):
		}
	}

	result.Duration = time.Since(result.StartTime)
	if lastErr != nil && !result.Success {
		result.Error = lastErr.Error()
		log.Error().Err(lastErr).Dur("duration", result.Duration).Msg("Job failed after all retries")
	} else {
		log.Info().Dur("duration", result.Duration).Msg("Job completed successfully")
	}

	s.mu.Lock()
	s.last[name] = result
	s.mu.Unlock()
	return result
}

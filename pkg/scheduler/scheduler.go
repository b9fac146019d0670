// Package scheduler runs the engine's recurring background jobs on cron
// expressions: the involvement reminder sweep, the quality-metric sync check
// and the metrics export flush.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one recurring unit of work. Runs are skipped while a previous run
// of the same job is still in flight.
type Job struct {
	Name    string
	Cron    string // standard 5-field cron expression
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler manages cron-based job execution.
type Scheduler struct {
	mu          sync.Mutex
	cronEngine  *cron.Cron
	cronEntries map[string]cron.EntryID
	jobs        map[string]Job
	running     map[string]bool
	lastRun     map[string]time.Time
	lastErr     map[string]error
	wg          sync.WaitGroup
	started     bool
	logger      *zap.Logger
}

// defaultJobTimeout bounds a run when the job does not set its own.
const defaultJobTimeout = 10 * time.Minute

// New creates a stopped scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cronEngine:  cron.New(),
		cronEntries: make(map[string]cron.EntryID),
		jobs:        make(map[string]Job),
		running:     make(map[string]bool),
		lastRun:     make(map[string]time.Time),
		lastErr:     make(map[string]error),
		logger:      logger.Named("scheduler"),
	}
}

// Register adds a job to the cron engine. Registering a name twice replaces
// the previous entry.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if _, err := cron.ParseStandard(job.Cron); err != nil {
		return fmt.Errorf("invalid cron expression for job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.cronEntries[job.Name]; exists {
		s.cronEngine.Remove(entryID)
		delete(s.cronEntries, job.Name)
	}

	entryID, err := s.cronEngine.AddFunc(job.Cron, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %q: %w", job.Name, err)
	}
	s.cronEntries[job.Name] = entryID
	s.jobs[job.Name] = job

	s.logger.Info("registered job",
		zap.String("job", job.Name),
		zap.String("cron", job.Cron))
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cronEngine.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling and waits for in-flight runs to finish, bounded by
// the context.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	cronCtx := s.cronEngine.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timeout, some jobs may still be running")
		return ctx.Err()
	}

	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// TriggerNow runs a registered job immediately, bypassing its schedule. The
// skip-if-running guard still applies.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job not found: %s", name)
	}
	s.execute(job)
	return nil
}

// LastRun returns when the job last finished and its error, if any.
func (s *Scheduler) LastRun(name string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun[name], s.lastErr[name]
}

func (s *Scheduler) execute(job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Info("skipping run, previous still in flight", zap.String("job", job.Name))
		return
	}
	s.running[job.Name] = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)

	s.mu.Lock()
	s.lastRun[job.Name] = time.Now()
	s.lastErr[job.Name] = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("took", took),
			zap.Error(err))
		return
	}
	s.logger.Info("job done",
		zap.String("job", job.Name),
		zap.Duration("took", took))
}

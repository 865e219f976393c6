package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic maintenance task. Run reports how many rows or keys it
// touched. Jobs must be idempotent: a missed or repeated run is harmless.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) (int64, error)
}

type Result struct {
	Name         string        `json:"name"`
	Interval     string        `json:"interval"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastAffected int64         `json:"last_affected"`
	LastError    string        `json:"last_error,omitempty"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
}

// Scheduler runs each registered job on its own ticker, once immediately
// after Start and then every Interval until Stop.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	results map[string]*Result
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		jobs:    make(map[string]Job),
		results: make(map[string]*Result),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds job. It must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("scheduler: invalid job %q", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = job.Interval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	s.jobs[job.Name] = job
	s.results[job.Name] = &Result{Name: job.Name, Interval: job.Interval.String()}

	s.logger.Info("Registered scheduled job",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
	)
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
}

// Stop cancels in-flight runs and waits for every loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.execute(job)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.execute(job)
		}
	}
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	affected, err := job.Run(ctx)
	duration := time.Since(start)

	s.mu.Lock()
	result := s.results[job.Name]
	result.Runs++
	result.LastRun = start
	result.LastDuration = duration
	result.LastAffected = affected
	result.LastError = ""
	if err != nil {
		result.Failures++
		result.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Scheduled job finished",
		zap.String("job", job.Name),
		zap.Int64("affected", affected),
		zap.Duration("duration", duration),
	)
}

// RunNow executes the named job synchronously outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	s.execute(job)
	return nil
}

func (s *Scheduler) Result(name string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[name]
	if !ok {
		return Result{}, false
	}
	return *result, true
}

// Results returns a snapshot of every job, ordered by name.
func (s *Scheduler) Results() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Result, 0, len(s.results))
	for _, result := range s.results {
		out = append(out, *result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

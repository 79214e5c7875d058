package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/services"
	"github.com/robfig/cron/v3"
)

// Runner performs one reconcile pass for a date.
type Runner interface {
	Run(ctx context.Context, date time.Time) *services.RunResult
}

// Scheduler drives the reconciler from a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	ctx    context.Context
	now    func() time.Time

	mu      sync.Mutex
	lastRun *services.RunResult
}

// New creates a Scheduler with a seconds-aware parser. A run that is still
// in progress when the next tick fires causes that tick to be skipped.
func New(ctx context.Context, runner Runner) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
			cron.WithLogger(cronLogger{}),
		),
		runner: runner,
		ctx:    ctx,
		now:    time.Now,
	}
}

// Register adds the reconcile job under a cron expression (six fields, seconds first).
func (s *Scheduler) Register(expr string) error {
	if _, err := s.cron.AddFunc(expr, func() { s.reconcile() }); err != nil {
		return fmt.Errorf("register reconcile task %q: %w", expr, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler: started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Scheduler: stopped")
}

// RunNow executes the reconcile job immediately (RECONCILE_ON_START).
func (s *Scheduler) RunNow() *services.RunResult {
	return s.reconcile()
}

// LastRun returns the result of the most recent pass, or nil.
func (s *Scheduler) LastRun() *services.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// reconcile targets the UTC day that ended most recently, so a run shortly
// after midnight closes out the previous day's analytics.
func (s *Scheduler) reconcile() *services.RunResult {
	date := s.now().UTC().AddDate(0, 0, -1)
	logger.Info("Scheduler: running reconcile for %s", date.Format("2006-01-02"))

	result := s.runner.Run(s.ctx, date)
	if err := result.Err(); err != nil {
		logger.Error("Scheduler: reconcile finished with errors: %v", err)
	}

	s.mu.Lock()
	s.lastRun = result
	s.mu.Unlock()
	return result
}

// cronLogger routes the cron library's own logs through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("Scheduler: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("Scheduler: %s: %v %v", msg, err, keysAndValues)
}

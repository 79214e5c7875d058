package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rhino-signals/backend/internal/services"
)

type fakeRunner struct {
	mu    sync.Mutex
	dates []time.Time
	calls chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(chan struct{}, 16)}
}

func (f *fakeRunner) Run(_ context.Context, date time.Time) *services.RunResult {
	f.mu.Lock()
	f.dates = append(f.dates, date)
	f.mu.Unlock()
	f.calls <- struct{}{}
	return &services.RunResult{DeactivatedCount: 1}
}

func TestRunNowTargetsPreviousDay(t *testing.T) {
	runner := newFakeRunner()
	s := New(context.Background(), runner)
	s.now = func() time.Time { return time.Date(2024, 3, 2, 0, 5, 0, 0, time.UTC) }

	result := s.RunNow()
	if result == nil || result.DeactivatedCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if s.LastRun() != result {
		t.Fatal("last run should be recorded")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.dates) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runner.dates))
	}
	if got := runner.dates[0].Format("2006-01-02"); got != "2024-03-01" {
		t.Fatalf("expected 2024-03-01, got %s", got)
	}
}

func TestRegisterRejectsInvalidExpression(t *testing.T) {
	s := New(context.Background(), newFakeRunner())
	if err := s.Register("not a cron"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	// five-field expressions are rejected by the seconds-aware parser
	if err := s.Register("5 0 * * *"); err == nil {
		t.Fatal("expected error for an expression without seconds")
	}
	if err := s.Register("0 5 0 * * *"); err != nil {
		t.Fatalf("default expression should parse: %v", err)
	}
}

func TestScheduledRun(t *testing.T) {
	runner := newFakeRunner()
	s := New(context.Background(), runner)
	if err := s.Register("* * * * * *"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-runner.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

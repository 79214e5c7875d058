package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rhino-signals/backend/internal/services"
)

type fakeRunner struct {
	date   time.Time
	result *services.RunResult
}

func (f *fakeRunner) Run(_ context.Context, date time.Time) *services.RunResult {
	f.date = date
	return f.result
}

func TestReconcileParsesDate(t *testing.T) {
	runner := &fakeRunner{result: &services.RunResult{
		DeactivatedCount: 2,
		Analytics:        &services.AnalyticsResult{Date: "2024-03-01", Attempted: 1, Upserted: 1},
	}}
	app := fiber.New()
	app.Post("/reconcile", NewJobsHandler(runner).Reconcile)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile?date=2024-03-01", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !runner.date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date passed to reconciler: %v", runner.date)
	}

	var out services.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.DeactivatedCount != 2 || out.Analytics == nil || out.Analytics.Upserted != 1 {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestReconcileRejectsBadDate(t *testing.T) {
	runner := &fakeRunner{result: &services.RunResult{}}
	app := fiber.New()
	app.Post("/reconcile", NewJobsHandler(runner).Reconcile)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile?date=03/01/2024", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !runner.date.IsZero() {
		t.Fatal("reconciler should not run on a bad date")
	}
}

func TestReconcileReportsPartialFailure(t *testing.T) {
	runner := &fakeRunner{result: &services.RunResult{
		DeactivatedCount: 1,
		Errors:           []string{"recompute analytics for 2024-03-01: boom"},
	}}
	app := fiber.New()
	app.Post("/reconcile", NewJobsHandler(runner).Reconcile)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	var out services.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.DeactivatedCount != 1 || len(out.Errors) != 1 {
		t.Fatalf("partial result should be returned: %+v", out)
	}
}

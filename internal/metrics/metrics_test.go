package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordIngest(OutcomeAccepted)
	r.RecordIngest(OutcomeAccepted)
	r.RecordIngest(OutcomeRejected)
	r.RecordDroppedSubscriber()
	r.RecordReconcile("sweep", nil)
	r.RecordReconcile("analytics", errors.New("boom"))
	r.RecordDeactivated(3)
	r.RecordDeactivated(0)
	r.ObserveStage("record", time.Now())

	if got := testutil.ToFloat64(r.signalsIngested.WithLabelValues(OutcomeAccepted)); got != 2 {
		t.Fatalf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(r.signalsIngested.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Fatalf("expected 1 rejected, got %v", got)
	}
	if got := testutil.ToFloat64(r.droppedSubscribers); got != 1 {
		t.Fatalf("expected 1 dropped subscriber, got %v", got)
	}
	if got := testutil.ToFloat64(r.reconcileRuns.WithLabelValues("analytics", "error")); got != 1 {
		t.Fatalf("expected 1 analytics error, got %v", got)
	}
	if got := testutil.ToFloat64(r.symbolsDeactivated); got != 3 {
		t.Fatalf("expected 3 deactivated, got %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordIngest(OutcomeFailed)
	r.AddSubscriber("sse", 1)
	r.RecordReconcile("sweep", nil)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

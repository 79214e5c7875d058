/**
 * @description
 * Ingestion pipeline entry point.
 * Validate -> record (one transaction) -> notify viewers after commit.
 *
 * @dependencies
 * - backend/internal/signals
 * - backend/internal/metrics
 */

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/signals"
)

// Publisher delivers committed signals to live viewers.
type Publisher interface {
	Publish(ctx context.Context, update SignalUpdate) error
}

// IngestResult is returned to the webhook caller.
type IngestResult struct {
	SignalID uuid.UUID `json:"signalId"`
	Symbol   string    `json:"symbol"`
	Score    int       `json:"score"`
}

type IngestService struct {
	validator *signals.Validator
	recorder  *SignalRecorder
	publisher Publisher
	metrics   *metrics.Recorder
}

// NewIngestService wires the pipeline. publisher may be nil.
func NewIngestService(validator *signals.Validator, recorder *SignalRecorder, publisher Publisher, rec *metrics.Recorder) *IngestService {
	return &IngestService{
		validator: validator,
		recorder:  recorder,
		publisher: publisher,
		metrics:   rec,
	}
}

// Ingest processes one raw payload. A *signals.ValidationError means nothing
// was written; a *PersistenceError means the transaction rolled back.
// Notification problems are logged and never returned.
func (s *IngestService) Ingest(ctx context.Context, raw map[string]interface{}) (*IngestResult, error) {
	start := time.Now()

	ev, err := s.validator.Validate(raw)
	s.metrics.ObserveStage("validate", start)
	if err != nil {
		s.metrics.RecordIngest(metrics.OutcomeRejected)
		var verr *signals.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("Ingest: rejected payload: %v", verr)
		}
		return nil, err
	}

	recordStart := time.Now()
	res, err := s.recorder.Record(ctx, ev)
	s.metrics.ObserveStage("record", recordStart)
	if err != nil {
		s.metrics.RecordIngest(metrics.OutcomeFailed)
		logger.Error("Ingest: failed to record signal for %s: %v", ev.Symbol, err)
		return nil, err
	}

	s.metrics.RecordIngest(metrics.OutcomeAccepted)
	s.metrics.RecordLastScore(res.Symbol.Symbol, res.Signal.TrendScore)
	logger.Info("Ingest: stored signal %s for %s (score %d)", res.Signal.ID, res.Symbol.Symbol, res.Signal.TrendScore)

	if s.publisher != nil {
		notifyStart := time.Now()
		if err := s.publisher.Publish(ctx, NewSignalUpdate(res.Symbol.Symbol, res.Signal)); err != nil {
			logger.Warn("Ingest: notify viewers for %s: %v", res.Symbol.Symbol, err)
		}
		s.metrics.ObserveStage("notify", notifyStart)
	}

	s.metrics.ObserveStage("total", start)
	return &IngestResult{
		SignalID: res.Signal.ID,
		Symbol:   res.Symbol.Symbol,
		Score:    res.Signal.TrendScore,
	}, nil
}

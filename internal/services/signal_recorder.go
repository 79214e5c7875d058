/**
 * @description
 * Signal Recorder.
 * Persists one validated event as a unit: dimension resolution, the signal row
 * and its per-timeframe rows commit together or not at all.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes: raw payload snapshot
 * - github.com/jackc/pgx/v5/pgconn: serialization failure detection
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/models"
	"github.com/rhino-signals/backend/internal/signals"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxRecordAttempts = 3

// PersistenceError reports that an event could not be stored. Nothing from
// the failed attempt is visible; retrying the same event is safe.
type PersistenceError struct {
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist signal for %s: %v", e.Symbol, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RecordResult is what a committed ingest transaction produced.
type RecordResult struct {
	Signal     models.Signal
	Symbol     models.Symbol
	Timeframes []models.SignalTimeframe
}

type SignalRecorder struct {
	db       *gorm.DB
	resolver *DimensionResolver
	metrics  *metrics.Recorder
	now      func() time.Time
}

func NewSignalRecorder(db *gorm.DB, resolver *DimensionResolver, rec *metrics.Recorder) *SignalRecorder {
	return &SignalRecorder{
		db:       db,
		resolver: resolver,
		metrics:  rec,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record stores ev in a single transaction, retrying on serialization
// failures and deadlocks.
func (s *SignalRecorder) Record(ctx context.Context, ev *signals.Event) (*RecordResult, error) {
	var (
		result *RecordResult
		err    error
	)

	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		result, err = s.recordOnce(ctx, ev)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) || attempt == maxRecordAttempts {
			break
		}

		s.metrics.RecordRetry()
		backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, &PersistenceError{Symbol: ev.Symbol, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	return nil, &PersistenceError{Symbol: ev.Symbol, Err: err}
}

func (s *SignalRecorder) recordOnce(ctx context.Context, ev *signals.Event) (*RecordResult, error) {
	receivedAt := s.now()
	signalTime := receivedAt
	if ev.Timestamp != nil {
		signalTime = ev.Timestamp.UTC()
	}

	snapshot, err := ev.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot payload: %w", err)
	}

	out := &RecordResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sym, err := s.resolver.ResolveSymbol(ctx, tx, ev.Symbol, SymbolMeta{
			DisplayName: ev.DisplayName,
			Exchange:    ev.Exchange,
			AssetType:   ev.AssetType,
		}, receivedAt)
		if err != nil {
			return err
		}

		shortTerm, err := s.resolver.ResolveTimeframes(ctx, tx, ev.Timeframes)
		if err != nil {
			return err
		}

		sig := models.Signal{
			SymbolID:              sym.ID,
			SignalType:            models.SignalTypeWebhook,
			TrendScore:            ev.TrendScore,
			PreviousScore:         ev.PreviousScore,
			Price:                 ev.Price,
			Pattern:               ev.Pattern,
			TrendDirection:        models.TrendDirection(ev.TrendDirection),
			TotalActiveTimeframes: ev.TotalActiveTimeframes,
			UptrendCount:          ev.UptrendCount,
			DowntrendCount:        ev.DowntrendCount,
			AlignmentRatio:        ev.AlignmentRatio,
			ScoreDescription:      ev.ScoreDescription,
			ChartTimeframe:        ev.ChartTimeframe,
			RawData:               datatypes.JSON(snapshot),
			SignalTime:            signalTime,
			CreatedAt:             receivedAt,
		}
		if err := tx.Create(&sig).Error; err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}

		rows := buildSignalTimeframes(sig, ev.Timeframes, shortTerm)
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert signal timeframes: %w", err)
			}
		}

		out.Signal = sig
		out.Symbol = *sym
		out.Timeframes = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildSignalTimeframes(sig models.Signal, entries map[string]signals.TimeframeEntry, shortTerm map[string]bool) []models.SignalTimeframe {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]models.SignalTimeframe, 0, len(keys))
	for _, key := range keys {
		entry := entries[key]
		rows = append(rows, models.SignalTimeframe{
			SignalID:        sig.ID,
			TfKey:           key,
			Period:          entry.Period,
			Status:          models.TimeframeStatus(entry.Status),
			SupportLevel:    entry.Support,
			ResistanceLevel: entry.Resistance,
			IsShortTerm:     shortTerm[key],
		})
	}
	return rows
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

/**
 * @description
 * Reconciler.
 * Periodic maintenance over the signal store: marks symbols inactive once they
 * stop reporting, reports symbol counts, and rebuilds the per-symbol daily
 * aggregate for a date. Sub-operations are independent; one failing does not
 * stop the others.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultStaleAfter = 7 * 24 * time.Hour

// SymbolStats is a point-in-time count of symbols by state.
type SymbolStats struct {
	TotalSymbols    int64 `gorm:"column:total_symbols" json:"totalSymbols"`
	ActiveSymbols   int64 `gorm:"column:active_symbols" json:"activeSymbols"`
	InactiveSymbols int64 `gorm:"column:inactive_symbols" json:"inactiveSymbols"`
	Stale7Days      int64 `gorm:"column:stale_7d" json:"stale7Days"`
	Stale30Days     int64 `gorm:"column:stale_30d" json:"stale30Days"`
}

// AnalyticsResult summarizes one daily recompute.
type AnalyticsResult struct {
	Date      string `json:"date"`
	Attempted int    `json:"attempted"`
	Upserted  int    `json:"upserted"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Removed   int64  `json:"removed"`
}

// RunResult is the outcome of a full reconcile pass. Errors lists the
// sub-operations that failed; the other fields hold whatever succeeded.
type RunResult struct {
	DeactivatedCount int64            `json:"deactivatedCount"`
	Stats            *SymbolStats     `json:"stats,omitempty"`
	Analytics        *AnalyticsResult `json:"analytics,omitempty"`
	Errors           []string         `json:"errors,omitempty"`
}

// Err joins the sub-operation failures, or returns nil.
func (r *RunResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, errors.New(e))
	}
	return errors.Join(errs...)
}

type Reconciler struct {
	db         *gorm.DB
	staleAfter time.Duration
	metrics    *metrics.Recorder
	now        func() time.Time
}

func NewReconciler(db *gorm.DB, staleAfter time.Duration, rec *metrics.Recorder) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		db:         db,
		staleAfter: staleAfter,
		metrics:    rec,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SweepStale marks active symbols whose last_seen is older than the
// staleness window as inactive, in a single statement, and returns how
// many changed.
func (r *Reconciler) SweepStale(ctx context.Context) (int64, error) {
	now := r.now()
	cutoff := now.Add(-r.staleAfter)

	res := r.db.WithContext(ctx).
		Model(&models.Symbol{}).
		Where("is_active = ? AND last_seen < ?", true, cutoff).
		Updates(map[string]interface{}{"is_active": false, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep stale symbols: %w", res.Error)
	}

	r.metrics.RecordDeactivated(res.RowsAffected)
	return res.RowsAffected, nil
}

// SymbolStats counts symbols by activity and staleness.
func (r *Reconciler) SymbolStats(ctx context.Context) (*SymbolStats, error) {
	now := r.now()

	var stats SymbolStats
	err := r.db.WithContext(ctx).
		Model(&models.Symbol{}).
		Select(`COUNT(*) AS total_symbols,
			COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_symbols,
			COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive_symbols,
			COALESCE(SUM(CASE WHEN last_seen < ? THEN 1 ELSE 0 END), 0) AS stale_7d,
			COALESCE(SUM(CASE WHEN last_seen < ? THEN 1 ELSE 0 END), 0) AS stale_30d`,
			now.Add(-7*24*time.Hour), now.Add(-30*24*time.Hour)).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("symbol stats: %w", err)
	}
	return &stats, nil
}

type signalSample struct {
	SymbolID   uint
	TrendScore int
	Price      decimal.Decimal
}

// RecomputeDailyAnalytics rebuilds symbol_analytics for the UTC day
// containing date from the signals received that day. Rows whose aggregates
// did not change are left untouched, so running it twice gives the same table.
func (r *Reconciler) RecomputeDailyAnalytics(ctx context.Context, date time.Time) (*AnalyticsResult, error) {
	day := truncateDay(date)
	next := day.AddDate(0, 0, 1)
	result := &AnalyticsResult{Date: day.Format("2006-01-02")}

	var samples []signalSample
	err := r.db.WithContext(ctx).
		Model(&models.Signal{}).
		Select("symbol_id, trend_score, price").
		Where("created_at >= ? AND created_at < ?", day, next).
		Order("symbol_id").
		Scan(&samples).Error
	if err != nil {
		return result, fmt.Errorf("load signals for %s: %w", result.Date, err)
	}

	grouped := make(map[uint][]signalSample)
	for _, s := range samples {
		grouped[s.SymbolID] = append(grouped[s.SymbolID], s)
	}

	ids := make([]uint, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := r.now()
	var failures []error
	for _, id := range ids {
		result.Attempted++
		row := aggregate(id, day, grouped[id])
		row.UpdatedAt = now

		unchanged := false
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// a rerun over unchanged signals leaves the row, updated_at included, as it was
			var current models.SymbolAnalytics
			if err := tx.Where("symbol_id = ? AND date = ?", id, day).Limit(1).Find(&current).Error; err != nil {
				return err
			}
			if current.ID != 0 && current.SameAggregates(row) {
				unchanged = true
				return nil
			}

			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "symbol_id"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"signal_count",
					"avg_score",
					"score_volatility",
					"price_change_percent",
					"max_score",
					"min_score",
					"dominant_trend",
					"updated_at",
				}),
			}).Create(&row).Error
		})
		if err != nil {
			result.Failed++
			logger.Error("Reconciler: analytics upsert for symbol %d on %s failed: %v", id, result.Date, err)
			failures = append(failures, fmt.Errorf("symbol %d: %w", id, err))
			continue
		}
		if unchanged {
			result.Unchanged++
			continue
		}
		result.Upserted++
	}

	del := r.db.WithContext(ctx).Where("date = ?", day)
	if len(ids) > 0 {
		del = del.Where("symbol_id NOT IN ?", ids)
	}
	res := del.Delete(&models.SymbolAnalytics{})
	if res.Error != nil {
		failures = append(failures, fmt.Errorf("remove outdated analytics: %w", res.Error))
	} else {
		result.Removed = res.RowsAffected
	}

	if len(failures) > 0 {
		return result, fmt.Errorf("recompute analytics for %s: %w", result.Date, errors.Join(failures...))
	}
	return result, nil
}

// aggregate computes one symbol's daily row. Volatility is the sample
// standard deviation and is left NULL with fewer than two signals.
func aggregate(symbolID uint, day time.Time, samples []signalSample) models.SymbolAnalytics {
	row := models.SymbolAnalytics{
		SymbolID:    symbolID,
		Date:        day,
		SignalCount: len(samples),
		MaxScore:    samples[0].TrendScore,
		MinScore:    samples[0].TrendScore,
	}

	sum := 0.0
	minPrice, maxPrice := samples[0].Price, samples[0].Price
	for _, s := range samples {
		sum += float64(s.TrendScore)
		if s.TrendScore > row.MaxScore {
			row.MaxScore = s.TrendScore
		}
		if s.TrendScore < row.MinScore {
			row.MinScore = s.TrendScore
		}
		if s.Price.LessThan(minPrice) {
			minPrice = s.Price
		}
		if s.Price.GreaterThan(maxPrice) {
			maxPrice = s.Price
		}
	}

	n := float64(len(samples))
	row.AvgScore = sum / n

	if len(samples) > 1 {
		sq := 0.0
		for _, s := range samples {
			d := float64(s.TrendScore) - row.AvgScore
			sq += d * d
		}
		v := math.Sqrt(sq / (n - 1))
		row.ScoreVolatility = &v
	}

	if minPrice.IsPositive() {
		pct, _ := maxPrice.Sub(minPrice).Div(minPrice).Mul(decimal.NewFromInt(100)).Float64()
		row.PriceChangePercent = pct
	}

	switch {
	case row.AvgScore > 1:
		row.DominantTrend = models.TrendUp
	case row.AvgScore < -1:
		row.DominantTrend = models.TrendDown
	default:
		row.DominantTrend = models.TrendNeutral
	}
	return row
}

// Run performs the sweep, the stats snapshot and the analytics recompute for
// date. Each step runs even when an earlier one fails.
func (r *Reconciler) Run(ctx context.Context, date time.Time) *RunResult {
	out := &RunResult{}

	n, err := r.SweepStale(ctx)
	r.metrics.RecordReconcile("sweep", err)
	if err != nil {
		logger.Error("Reconciler: %v", err)
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.DeactivatedCount = n
	}

	stats, err := r.SymbolStats(ctx)
	r.metrics.RecordReconcile("stats", err)
	if err != nil {
		logger.Error("Reconciler: %v", err)
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.Stats = stats
	}

	analytics, err := r.RecomputeDailyAnalytics(ctx, date)
	r.metrics.RecordReconcile("analytics", err)
	out.Analytics = analytics
	if err != nil {
		logger.Error("Reconciler: %v", err)
		out.Errors = append(out.Errors, err.Error())
	}

	logger.Info("Reconciler: %d symbols marked inactive, analytics for %s: %d/%d upserted, %d unchanged, %d removed",
		out.DeactivatedCount, analytics.Date, analytics.Upserted, analytics.Attempted, analytics.Unchanged, analytics.Removed)
	return out
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package models

import (
	"math"
	"time"
)

// SymbolAnalytics is the per-symbol daily aggregate owned by the reconciler.
type SymbolAnalytics struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SymbolID           uint           `gorm:"column:symbol_id;not null;uniqueIndex:idx_symbol_analytics_symbol_date" json:"symbol_id"`
	Date               time.Time      `gorm:"column:date;type:date;not null;uniqueIndex:idx_symbol_analytics_symbol_date" json:"date"`
	SignalCount        int            `gorm:"column:signal_count;not null" json:"signal_count"`
	AvgScore           float64        `gorm:"column:avg_score;not null" json:"avg_score"`
	ScoreVolatility    *float64       `gorm:"column:score_volatility" json:"score_volatility"` // NULL below two samples
	PriceChangePercent float64        `gorm:"column:price_change_percent;not null" json:"price_change_percent"`
	MaxScore           int            `gorm:"column:max_score;not null" json:"max_score"`
	MinScore           int            `gorm:"column:min_score;not null" json:"min_score"`
	DominantTrend      TrendDirection `gorm:"column:dominant_trend;type:varchar(10);not null" json:"dominant_trend"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by SymbolAnalytics to `symbol_analytics`
func (SymbolAnalytics) TableName() string {
	return "symbol_analytics"
}

// SameAggregates reports whether o carries the same computed values as a,
// ignoring identity and updated_at.
func (a SymbolAnalytics) SameAggregates(o SymbolAnalytics) bool {
	if (a.ScoreVolatility == nil) != (o.ScoreVolatility == nil) {
		return false
	}
	if a.ScoreVolatility != nil && !closeEnough(*a.ScoreVolatility, *o.ScoreVolatility) {
		return false
	}
	return a.SignalCount == o.SignalCount &&
		closeEnough(a.AvgScore, o.AvgScore) &&
		closeEnough(a.PriceChangePercent, o.PriceChangePercent) &&
		a.MaxScore == o.MaxScore &&
		a.MinScore == o.MinScore &&
		a.DominantTrend == o.DominantTrend
}

// stored numerics may come back with a last-digit difference
func closeEnough(x, y float64) bool {
	return math.Abs(x-y) <= 1e-9*math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
}

/**
 * @description
 * Signal database models.
 * Maps to the 'signals' and 'signal_timeframes' tables in PostgreSQL.
 * Rows are written once by the ingestion transaction and never updated.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes: raw payload snapshot (jsonb)
 * - github.com/shopspring/decimal: exact prices
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SignalTypeWebhook marks signals received through the charting webhook
const SignalTypeWebhook = "WEBHOOK_SIGNAL"

// TrendDirection is the sender's overall direction label
type TrendDirection string

const (
	TrendUp      TrendDirection = "UP"
	TrendDown    TrendDirection = "DOWN"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// TimeframeStatus is the per-timeframe trend state
type TimeframeStatus string

const (
	StatusUp       TimeframeStatus = "UP"
	StatusDown     TimeframeStatus = "DOWN"
	StatusInactive TimeframeStatus = "INACTIVE"
)

// Signal is one accepted RHINO score event
type Signal struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SymbolID              uint            `gorm:"column:symbol_id;not null;index:idx_signals_symbol_created" json:"symbol_id"`
	SignalType            string          `gorm:"column:signal_type;type:varchar(32);not null" json:"signal_type"`
	TrendScore            int             `gorm:"column:trend_score;not null" json:"trend_score"`
	PreviousScore         *int            `gorm:"column:previous_score" json:"previous_score,omitempty"`
	Price                 decimal.Decimal `gorm:"column:price;type:decimal(20,8);not null" json:"price"`
	Pattern               string          `gorm:"column:pattern" json:"pattern"`
	TrendDirection        TrendDirection  `gorm:"column:trend_direction;type:varchar(10);not null" json:"trend_direction"`
	TotalActiveTimeframes int             `gorm:"column:total_active_timeframes;not null" json:"total_active_timeframes"`
	UptrendCount          int             `gorm:"column:uptrend_count;not null" json:"uptrend_count"`
	DowntrendCount        int             `gorm:"column:downtrend_count;not null" json:"downtrend_count"`
	AlignmentRatio        string          `gorm:"column:alignment_ratio" json:"alignment_ratio"`
	ScoreDescription      string          `gorm:"column:score_description" json:"score_description"`
	ChartTimeframe        string          `gorm:"column:chart_timeframe" json:"chart_timeframe"`
	RawData               datatypes.JSON  `gorm:"column:raw_data;type:jsonb" json:"raw_data"`
	SignalTime            time.Time       `gorm:"column:signal_time;not null" json:"signal_time"`
	CreatedAt             time.Time       `gorm:"column:created_at;not null;index;index:idx_signals_symbol_created" json:"created_at"`
}

// TableName overrides the table name used by Signal to `signals`
func (Signal) TableName() string {
	return "signals"
}

// BeforeCreate ensures UUID is generated if not present
func (s *Signal) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// SignalTimeframe is the status of one timeframe inside a signal
type SignalTimeframe struct {
	ID              uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalID        uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_signal_timeframes_signal_tf" json:"signal_id"`
	TfKey           string              `gorm:"column:tf_key;not null;uniqueIndex:idx_signal_timeframes_signal_tf" json:"tf_key"`
	Period          string              `gorm:"column:period;not null" json:"period"`
	Status          TimeframeStatus     `gorm:"column:status;type:varchar(10);not null" json:"status"`
	SupportLevel    decimal.NullDecimal `gorm:"column:support_level;type:decimal(20,8)" json:"support_level"`
	ResistanceLevel decimal.NullDecimal `gorm:"column:resistance_level;type:decimal(20,8)" json:"resistance_level"`
	IsShortTerm     bool                `gorm:"column:is_short_term;not null" json:"is_short_term"`
}

// TableName overrides the table name used by SignalTimeframe to `signal_timeframes`
func (SignalTimeframe) TableName() string {
	return "signal_timeframes"
}

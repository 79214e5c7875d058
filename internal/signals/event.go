/**
 * @description
 * Inbound RHINO score event as posted by the charting tool's webhook, and the
 * fixed score tables that define a well-formed event.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact prices and levels
 */

package signals

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payload keys
const (
	KeySymbol                = "symbol"
	KeyTrendScore            = "trend_score"
	KeyPreviousScore         = "previous_score"
	KeyPrice                 = "price"
	KeyPattern               = "pattern"
	KeyTrendDirection        = "trend_direction"
	KeyTotalActiveTimeframes = "total_active_timeframes"
	KeyUptrendCount          = "uptrend_count"
	KeyDowntrendCount        = "downtrend_count"
	KeyAlignmentRatio        = "alignment_ratio"
	KeyScoreDescription      = "score_description"
	KeyChartTimeframe        = "chart_timeframe"
	KeyTimeframes            = "timeframes"
	KeyTimestamp             = "timestamp"
	KeyExchange              = "exchange"
	KeyAssetType             = "asset_type"
	KeyDisplayName           = "display_name"
)

// MaxTimeframes is the number of timeframes the charting tool tracks.
const MaxTimeframes = 8

// ValidScores is the closed RHINO score enumeration.
var ValidScores = []int{-8, -7, -6, -5, 0, 5, 6, 7, 8}

// Triple is a (score, uptrend, downtrend) combination.
type Triple struct {
	Score int
	Up    int
	Down  int
}

// CanonicalTriples are the only combinations the charting tool can emit.
var CanonicalTriples = []Triple{
	{-8, 0, 8},
	{-7, 1, 7},
	{-6, 2, 6},
	{-5, 3, 5},
	{0, 4, 4},
	{5, 5, 3},
	{6, 6, 2},
	{7, 7, 1},
	{8, 8, 0},
}

// IsCanonical reports whether the triple appears in CanonicalTriples.
func IsCanonical(score, up, down int) bool {
	for _, c := range CanonicalTriples {
		if c.Score == score && c.Up == up && c.Down == down {
			return true
		}
	}
	return false
}

// TimeframeEntry is one tf_key entry of the payload's timeframe map.
type TimeframeEntry struct {
	Period     string              `json:"period" validate:"required"`
	Status     string              `json:"status" validate:"required,oneof=UP DOWN INACTIVE"`
	Support    decimal.NullDecimal `json:"support"`
	Resistance decimal.NullDecimal `json:"resistance"`
}

// Event is a validated, typed signal payload.
type Event struct {
	Symbol                string                    `json:"symbol" validate:"required,min=3,max=20"`
	TrendScore            int                       `json:"trend_score" validate:"oneof=-8 -7 -6 -5 0 5 6 7 8"`
	PreviousScore         *int                      `json:"previous_score" validate:"omitempty,oneof=-8 -7 -6 -5 0 5 6 7 8"`
	Price                 decimal.Decimal           `json:"price"`
	Pattern               string                    `json:"pattern" validate:"required"`
	TrendDirection        string                    `json:"trend_direction" validate:"required,oneof=UP DOWN NEUTRAL"`
	TotalActiveTimeframes int                       `json:"total_active_timeframes" validate:"min=0,max=8"`
	UptrendCount          int                       `json:"uptrend_count" validate:"min=0,max=8"`
	DowntrendCount        int                       `json:"downtrend_count" validate:"min=0,max=8"`
	AlignmentRatio        string                    `json:"alignment_ratio" validate:"required"`
	ScoreDescription      string                    `json:"score_description" validate:"required"`
	ChartTimeframe        string                    `json:"chart_timeframe" validate:"required"`
	Timeframes            map[string]TimeframeEntry `json:"timeframes" validate:"required,dive,keys,required,endkeys"`
	Timestamp             *time.Time                `json:"timestamp"`
	Exchange              string                    `json:"exchange"`
	AssetType             string                    `json:"asset_type"`
	DisplayName           string                    `json:"display_name"`
}

// Snapshot renders the validated event as JSON for the signal's raw_data
// column. Numbers keep their exact decimal text.
func (e *Event) Snapshot() ([]byte, error) {
	tfs := make(map[string]interface{}, len(e.Timeframes))
	for key, tf := range e.Timeframes {
		entry := map[string]interface{}{
			"period": tf.Period,
			"status": tf.Status,
		}
		if tf.Support.Valid {
			entry["support"] = json.Number(tf.Support.Decimal.String())
		}
		if tf.Resistance.Valid {
			entry["resistance"] = json.Number(tf.Resistance.Decimal.String())
		}
		tfs[key] = entry
	}

	out := map[string]interface{}{
		KeySymbol:                e.Symbol,
		KeyTrendScore:            e.TrendScore,
		KeyPrice:                 json.Number(e.Price.String()),
		KeyPattern:               e.Pattern,
		KeyTrendDirection:        e.TrendDirection,
		KeyTotalActiveTimeframes: e.TotalActiveTimeframes,
		KeyUptrendCount:          e.UptrendCount,
		KeyDowntrendCount:        e.DowntrendCount,
		KeyAlignmentRatio:        e.AlignmentRatio,
		KeyScoreDescription:      e.ScoreDescription,
		KeyChartTimeframe:        e.ChartTimeframe,
		KeyTimeframes:            tfs,
	}
	if e.PreviousScore != nil {
		out[KeyPreviousScore] = *e.PreviousScore
	}
	if e.Timestamp != nil {
		out[KeyTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if e.Exchange != "" {
		out[KeyExchange] = e.Exchange
	}
	if e.AssetType != "" {
		out[KeyAssetType] = e.AssetType
	}
	if e.DisplayName != "" {
		out[KeyDisplayName] = e.DisplayName
	}
	return json.Marshal(out)
}

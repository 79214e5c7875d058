/**
 * @description
 * Dimension models discovered on demand from incoming signals.
 * Maps to the 'symbols', 'timeframes' and 'timeframe_categories' tables in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Symbol metadata defaults applied when a payload omits them
const (
	DefaultExchange  = "unknown"
	DefaultAssetType = "crypto"
)

// Symbol is a tradable instrument first seen in a signal payload
type Symbol struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol      string    `gorm:"column:symbol;type:varchar(20);uniqueIndex;not null" json:"symbol"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	Exchange    string    `gorm:"column:exchange" json:"exchange"`
	AssetType   string    `gorm:"column:asset_type" json:"asset_type"`
	IsActive    bool      `gorm:"column:is_active;not null;index" json:"is_active"`
	LastSeen    time.Time `gorm:"column:last_seen;not null;index" json:"last_seen"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Symbol to `symbols`
func (Symbol) TableName() string {
	return "symbols"
}

// TimeframeCategory is a band over timeframe minutes (short-term, long-term...)
type TimeframeCategory struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryName string `gorm:"column:category_name;uniqueIndex;not null" json:"category_name"`
	Description  string `gorm:"column:description" json:"description"`
	MinMinutes   int    `gorm:"column:min_minutes;not null" json:"min_minutes"`
	MaxMinutes   int    `gorm:"column:max_minutes;not null" json:"max_minutes"`
	SortOrder    int    `gorm:"column:sort_order;not null" json:"sort_order"`
	IsShortTerm  bool   `gorm:"column:is_short_term;not null" json:"is_short_term"`
}

// TableName overrides the table name used by TimeframeCategory to `timeframe_categories`
func (TimeframeCategory) TableName() string {
	return "timeframe_categories"
}

// Timeframe is a chart duration slot (tf_key + period) reported by the charting tool
type Timeframe struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TfKey       string `gorm:"column:tf_key;not null;uniqueIndex:idx_timeframes_key_period" json:"tf_key"`
	Period      string `gorm:"column:period;not null;uniqueIndex:idx_timeframes_key_period" json:"period"`
	DisplayName string `gorm:"column:display_name" json:"display_name"`
	Minutes     int    `gorm:"column:minutes;not null;index" json:"minutes"`
	CategoryID  *uint  `gorm:"column:category_id" json:"category_id"` // NULL when the period is uncategorizable
	IsShortTerm bool   `gorm:"column:is_short_term;not null" json:"is_short_term"`
}

// TableName overrides the table name used by Timeframe to `timeframes`
func (Timeframe) TableName() string {
	return "timeframes"
}

// SameMetadata reports whether o carries the same stored attributes as t.
func (t Timeframe) SameMetadata(o Timeframe) bool {
	if t.DisplayName != o.DisplayName || t.Minutes != o.Minutes || t.IsShortTerm != o.IsShortTerm {
		return false
	}
	switch {
	case t.CategoryID == nil && o.CategoryID == nil:
		return true
	case t.CategoryID == nil || o.CategoryID == nil:
		return false
	default:
		return *t.CategoryID == *o.CategoryID
	}
}

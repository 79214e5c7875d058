/**
 * @description
 * Dimension Resolver.
 * Maps symbol codes and (tf_key, period) pairs from a payload onto rows of the
 * symbols and timeframes tables, creating them on first sighting. Runs inside
 * the caller's transaction; the store's unique keys settle concurrent first
 * sightings.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/catalog
 * - backend/internal/models
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rhino-signals/backend/internal/catalog"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/models"
	"github.com/rhino-signals/backend/internal/signals"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSymbolNotResolved is returned when a symbol row can neither be created
// nor found after a conflicting insert.
var ErrSymbolNotResolved = errors.New("symbol could not be resolved")

// SymbolMeta carries optional descriptive fields from the payload.
type SymbolMeta struct {
	DisplayName string
	Exchange    string
	AssetType   string
}

type DimensionResolver struct {
	catalog     *catalog.Catalog
	categoryIDs map[string]uint
	metrics     *metrics.Recorder
}

// NewDimensionResolver creates a resolver. categoryIDs maps catalog band
// names to timeframe_categories ids, as returned by db.SeedCategories.
func NewDimensionResolver(cat *catalog.Catalog, categoryIDs map[string]uint, rec *metrics.Recorder) *DimensionResolver {
	ids := make(map[string]uint, len(categoryIDs))
	for k, v := range categoryIDs {
		ids[k] = v
	}
	return &DimensionResolver{catalog: cat, categoryIDs: ids, metrics: rec}
}

// ResolveSymbol returns the symbol row for code, creating it as active on
// first sighting, and stamps last_seen with seenAt. An inactive symbol stays
// inactive; only the reconciler writes is_active.
func (r *DimensionResolver) ResolveSymbol(ctx context.Context, tx *gorm.DB, code string, meta SymbolMeta, seenAt time.Time) (*models.Symbol, error) {
	tx = tx.WithContext(ctx)

	sym, err := findSymbol(tx, code)
	if err != nil {
		return nil, err
	}

	if sym == nil {
		sym, err = r.createSymbol(tx, code, meta, seenAt)
		if err != nil {
			return nil, err
		}
		return sym, nil
	}

	if err := tx.Model(&models.Symbol{}).
		Where("id = ?", sym.ID).
		Updates(map[string]interface{}{"last_seen": seenAt, "updated_at": seenAt}).Error; err != nil {
		return nil, fmt.Errorf("touch symbol %s: %w", code, err)
	}
	sym.LastSeen = seenAt
	sym.UpdatedAt = seenAt
	return sym, nil
}

func (r *DimensionResolver) createSymbol(tx *gorm.DB, code string, meta SymbolMeta, seenAt time.Time) (*models.Symbol, error) {
	sym := models.Symbol{
		Symbol:      code,
		DisplayName: meta.DisplayName,
		Exchange:    meta.Exchange,
		AssetType:   meta.AssetType,
		IsActive:    true,
		LastSeen:    seenAt,
		CreatedAt:   seenAt,
		UpdatedAt:   seenAt,
	}
	if sym.DisplayName == "" {
		sym.DisplayName = code
	}
	if sym.Exchange == "" {
		sym.Exchange = models.DefaultExchange
	}
	if sym.AssetType == "" {
		sym.AssetType = models.DefaultAssetType
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoNothing: true,
	}).Create(&sym)

	switch {
	case res.Error == nil && res.RowsAffected == 1:
		r.metrics.RecordSymbolDiscovered()
		return &sym, nil
	case res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey):
		return nil, fmt.Errorf("insert symbol %s: %w", code, res.Error)
	}

	// Another transaction created it first; adopt that row.
	existing, err := findSymbol(tx, code)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotResolved, code)
	}
	if err := tx.Model(&models.Symbol{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"last_seen": seenAt, "updated_at": seenAt}).Error; err != nil {
		return nil, fmt.Errorf("touch symbol %s: %w", code, err)
	}
	existing.LastSeen = seenAt
	return existing, nil
}

func findSymbol(tx *gorm.DB, code string) (*models.Symbol, error) {
	var sym models.Symbol
	err := tx.Where("symbol = ?", code).Limit(1).Find(&sym).Error
	if err != nil {
		return nil, fmt.Errorf("find symbol %s: %w", code, err)
	}
	if sym.ID == 0 {
		return nil, nil
	}
	return &sym, nil
}

// ResolveTimeframes makes sure every (tf_key, period) in the payload has a
// timeframes row with current metadata and returns each tf_key's short-term
// flag. Keys are processed in sorted order so concurrent writers lock rows
// in the same sequence.
func (r *DimensionResolver) ResolveTimeframes(ctx context.Context, tx *gorm.DB, entries map[string]signals.TimeframeEntry) (map[string]bool, error) {
	tx = tx.WithContext(ctx)

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	shortTerm := make(map[string]bool, len(entries))
	for _, key := range keys {
		entry := entries[key]
		want := r.Describe(key, entry.Period)

		var current models.Timeframe
		err := tx.Where("tf_key = ? AND period = ?", key, entry.Period).Limit(1).Find(&current).Error
		if err != nil {
			return nil, fmt.Errorf("find timeframe %s/%s: %w", key, entry.Period, err)
		}

		if current.ID == 0 || !current.SameMetadata(want) {
			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tf_key"}, {Name: "period"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"display_name",
					"minutes",
					"category_id",
					"is_short_term",
				}),
			}).Create(&want).Error
			if err != nil {
				return nil, fmt.Errorf("upsert timeframe %s/%s: %w", key, entry.Period, err)
			}
		}

		shortTerm[key] = want.IsShortTerm
	}
	return shortTerm, nil
}

// Describe derives the stored attributes of a timeframe from the catalog.
// Unknown periods get zero minutes, no category and is_short_term false.
func (r *DimensionResolver) Describe(tfKey, period string) models.Timeframe {
	tf := models.Timeframe{
		TfKey:       tfKey,
		Period:      period,
		DisplayName: fmt.Sprintf("%s (%s)", period, tfKey),
		Minutes:     r.catalog.MinutesFor(period),
	}
	if band := r.catalog.CategoryFor(tf.Minutes); band != nil {
		tf.IsShortTerm = band.ShortTerm
		if id, ok := r.categoryIDs[band.Name]; ok {
			id := id
			tf.CategoryID = &id
		}
	}
	return tf
}

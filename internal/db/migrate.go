package db

import (
	"context"
	"fmt"

	"github.com/rhino-signals/backend/internal/catalog"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates or updates the tables owned by this service. Unique
// indexes on symbols.symbol, timeframes(tf_key, period) and
// symbol_analytics(symbol_id, date) back the conflict handling in services.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Symbol{},
		&models.TimeframeCategory{},
		&models.Timeframe{},
		&models.Signal{},
		&models.SignalTimeframe{},
		&models.SymbolAnalytics{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedCategories upserts the catalog's category bands by name and returns
// their ids keyed by name. Safe to run on every start.
func SeedCategories(ctx context.Context, db *gorm.DB, cat *catalog.Catalog) (map[string]uint, error) {
	bands := cat.Bands()
	if len(bands) > 0 {
		rows := make([]models.TimeframeCategory, 0, len(bands))
		for _, b := range bands {
			rows = append(rows, models.TimeframeCategory{
				CategoryName: b.Name,
				Description:  b.Description,
				MinMinutes:   b.MinMinutes,
				MaxMinutes:   b.MaxMinutes,
				SortOrder:    b.SortOrder,
				IsShortTerm:  b.ShortTerm,
			})
		}

		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "category_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description",
				"min_minutes",
				"max_minutes",
				"sort_order",
				"is_short_term",
			}),
		}).Create(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("seed timeframe categories: %w", err)
		}
	}

	var stored []models.TimeframeCategory
	if err := db.WithContext(ctx).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("load timeframe categories: %w", err)
	}

	ids := make(map[string]uint, len(stored))
	for _, c := range stored {
		ids[c.CategoryName] = c.ID
	}

	logger.Info("Seeded %d timeframe categories", len(bands))
	return ids, nil
}

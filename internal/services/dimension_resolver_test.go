package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhino-signals/backend/internal/models"
	"github.com/rhino-signals/backend/internal/signals"
	"gorm.io/gorm"
)

func TestResolveSymbolCreatesWithMetadata(t *testing.T) {
	env := newTestEnv(t)
	seen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	sym, err := env.resolver.ResolveSymbol(context.Background(), env.db, "AAPL", SymbolMeta{
		DisplayName: "Apple Inc.",
		Exchange:    "NASDAQ",
		AssetType:   "stock",
	}, seen)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sym.ID == 0 || !sym.IsActive || sym.DisplayName != "Apple Inc." || sym.Exchange != "NASDAQ" || sym.AssetType != "stock" {
		t.Fatalf("unexpected symbol: %+v", sym)
	}
}

func TestResolveSymbolReusesExistingRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	a, err := env.resolver.ResolveSymbol(ctx, env.db, "ETHUSD", SymbolMeta{}, first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.resolver.ResolveSymbol(ctx, env.db, "ETHUSD", SymbolMeta{Exchange: "BINANCE"}, later)
	if err != nil {
		t.Fatal(err)
	}

	if a.ID != b.ID {
		t.Fatalf("expected the same row, got %d and %d", a.ID, b.ID)
	}
	if b.Exchange != models.DefaultExchange {
		t.Fatalf("existing metadata should not change, got %s", b.Exchange)
	}
	if !b.LastSeen.Equal(later) {
		t.Fatalf("last_seen = %v, want %v", b.LastSeen, later)
	}
	if n := countRows(t, env.db, &models.Symbol{}); n != 1 {
		t.Fatalf("expected 1 symbol, got %d", n)
	}
}

func TestCreateSymbolAdoptsRowOnConflict(t *testing.T) {
	env := newTestEnv(t)
	seen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	existing := insertSymbol(t, env.db, "XRPUSD", true, seen.Add(-time.Hour))

	// a writer that missed the row on lookup goes straight to insert
	sym, err := env.resolver.createSymbol(env.db, "XRPUSD", SymbolMeta{}, seen)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sym.ID != existing.ID {
		t.Fatalf("expected existing id %d, got %d", existing.ID, sym.ID)
	}
	if n := countRows(t, env.db, &models.Symbol{}); n != 1 {
		t.Fatalf("expected 1 symbol, got %d", n)
	}
}

func TestResolveTimeframesCategorizes(t *testing.T) {
	env := newTestEnv(t)

	short, err := env.resolver.ResolveTimeframes(context.Background(), env.db, map[string]signals.TimeframeEntry{
		"tf1": {Period: "120", Status: "UP"},
		"tf2": {Period: "240", Status: "DOWN"},
		"tf3": {Period: "4H", Status: "UP"},
		"tf4": {Period: "??", Status: "INACTIVE"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := map[string]bool{"tf1": true, "tf2": false, "tf3": false, "tf4": false}
	for k, v := range want {
		if short[k] != v {
			t.Errorf("%s: short term = %v, want %v", k, short[k], v)
		}
	}

	var unknown models.Timeframe
	if err := env.db.Where("tf_key = ? AND period = ?", "tf4", "??").First(&unknown).Error; err != nil {
		t.Fatal(err)
	}
	if unknown.Minutes != 0 || unknown.CategoryID != nil || unknown.IsShortTerm {
		t.Fatalf("unknown period should be uncategorized: %+v", unknown)
	}
	if unknown.DisplayName != "?? (tf4)" {
		t.Fatalf("unexpected display name %q", unknown.DisplayName)
	}

	var hourly models.Timeframe
	if err := env.db.Where("tf_key = ? AND period = ?", "tf1", "120").First(&hourly).Error; err != nil {
		t.Fatal(err)
	}
	if hourly.CategoryID == nil || hourly.Minutes != 120 {
		t.Fatalf("expected categorized 120 minute timeframe: %+v", hourly)
	}
}

func TestResolveTimeframesRepairsDriftedMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entries := map[string]signals.TimeframeEntry{"tf1": {Period: "15", Status: "UP"}}

	if _, err := env.resolver.ResolveTimeframes(ctx, env.db, entries); err != nil {
		t.Fatal(err)
	}
	if err := env.db.Model(&models.Timeframe{}).
		Where("tf_key = ?", "tf1").
		Updates(map[string]interface{}{"display_name": "stale", "minutes": 99}).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := env.resolver.ResolveTimeframes(ctx, env.db, entries); err != nil {
		t.Fatal(err)
	}

	var tf models.Timeframe
	if err := env.db.Where("tf_key = ? AND period = ?", "tf1", "15").First(&tf).Error; err != nil {
		t.Fatal(err)
	}
	if tf.DisplayName != "15 (tf1)" || tf.Minutes != 15 {
		t.Fatalf("metadata not repaired: %+v", tf)
	}
	if n := countRows(t, env.db, &models.Timeframe{}); n != 1 {
		t.Fatalf("expected 1 timeframe, got %d", n)
	}
}

func TestResolveInsideRolledBackTransactionLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := env.db.Transaction(func(tx *gorm.DB) error {
		if _, err := env.resolver.ResolveSymbol(ctx, tx, "DOGEUSD", SymbolMeta{}, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := env.resolver.ResolveTimeframes(ctx, tx, map[string]signals.TimeframeEntry{
			"tf1": {Period: "1", Status: "UP"},
		}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if n := countRows(t, env.db, &models.Symbol{}); n != 0 {
		t.Fatalf("expected no symbols, got %d", n)
	}
	if n := countRows(t, env.db, &models.Timeframe{}); n != 0 {
		t.Fatalf("expected no timeframes, got %d", n)
	}
}

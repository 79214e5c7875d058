package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhino-signals/backend/internal/catalog"
	"github.com/rhino-signals/backend/internal/db"
	"github.com/rhino-signals/backend/internal/db/dbtest"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/models"
	"github.com/rhino-signals/backend/internal/signals"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	metrics  *metrics.Recorder
	resolver *DimensionResolver
	recorder *SignalRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, dbtest.Open(t))
}

func newTestEnvOn(t *testing.T, gdb *gorm.DB) *testEnv {
	t.Helper()

	cat := catalog.Default()
	ids, err := db.SeedCategories(context.Background(), gdb, cat)
	if err != nil {
		t.Fatalf("seed categories: %v", err)
	}

	rec := metrics.New(prometheus.NewRegistry())
	resolver := NewDimensionResolver(cat, ids, rec)
	return &testEnv{
		db:       gdb,
		metrics:  rec,
		resolver: resolver,
		recorder: NewSignalRecorder(gdb, resolver, rec),
	}
}

func btcPayload() map[string]interface{} {
	return map[string]interface{}{
		"symbol":                  "BTCUSD",
		"trend_score":             float64(8),
		"price":                   float64(67250.5),
		"pattern":                 "Full Bull Alignment",
		"trend_direction":         "UP",
		"total_active_timeframes": float64(8),
		"uptrend_count":           float64(8),
		"downtrend_count":         float64(0),
		"alignment_ratio":         "8/8",
		"score_description":       "Maximum bullish",
		"chart_timeframe":         "60",
		"timeframes": map[string]interface{}{
			"tf1": map[string]interface{}{"period": "1", "status": "UP"},
			"tf2": map[string]interface{}{"period": "5", "status": "UP"},
			"tf3": map[string]interface{}{"period": "15", "status": "UP"},
			"tf4": map[string]interface{}{"period": "60", "status": "UP", "support": float64(67000)},
			"tf5": map[string]interface{}{"period": "240", "status": "UP"},
			"tf6": map[string]interface{}{"period": "D", "status": "UP"},
			"tf7": map[string]interface{}{"period": "W", "status": "UP"},
			"tf8": map[string]interface{}{"period": "M", "status": "UP"},
		},
	}
}

func mustEvent(t *testing.T, raw map[string]interface{}) *signals.Event {
	t.Helper()
	ev, err := signals.NewValidator().Validate(raw)
	if err != nil {
		t.Fatalf("payload should be valid: %v", err)
	}
	return ev
}

func countRows(t *testing.T, gdb *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func insertSymbol(t *testing.T, gdb *gorm.DB, code string, active bool, lastSeen time.Time) models.Symbol {
	t.Helper()
	sym := models.Symbol{
		Symbol:      code,
		DisplayName: code,
		Exchange:    models.DefaultExchange,
		AssetType:   models.DefaultAssetType,
		IsActive:    active,
		LastSeen:    lastSeen,
	}
	if err := gdb.Create(&sym).Error; err != nil {
		t.Fatalf("insert symbol %s: %v", code, err)
	}
	return sym
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

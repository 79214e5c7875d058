package signals

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func btcPayload() map[string]interface{} {
	return map[string]interface{}{
		"symbol":                  "BTCUSD",
		"trend_score":             float64(8),
		"previous_score":          float64(7),
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
			"tf1": map[string]interface{}{"period": "1", "status": "UP", "support": float64(67100)},
			"tf2": map[string]interface{}{"period": "5", "status": "UP"},
			"tf3": map[string]interface{}{"period": "15", "status": "UP"},
			"tf4": map[string]interface{}{"period": "60", "status": "UP"},
			"tf5": map[string]interface{}{"period": "240", "status": "UP"},
			"tf6": map[string]interface{}{"period": "D", "status": "UP", "resistance": float64(70000)},
			"tf7": map[string]interface{}{"period": "W", "status": "UP"},
			"tf8": map[string]interface{}{"period": "M", "status": "UP"},
		},
	}
}

func mustValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr
}

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	ev, err := NewValidator().Validate(btcPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.Symbol != "BTCUSD" || ev.TrendScore != 8 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.PreviousScore == nil || *ev.PreviousScore != 7 {
		t.Fatalf("expected previous score 7, got %v", ev.PreviousScore)
	}
	if ev.Price.String() != "67250.5" {
		t.Fatalf("expected price 67250.5, got %s", ev.Price)
	}
	if len(ev.Timeframes) != 8 {
		t.Fatalf("expected 8 timeframes, got %d", len(ev.Timeframes))
	}
	if !ev.Timeframes["tf1"].Support.Valid || ev.Timeframes["tf1"].Resistance.Valid {
		t.Fatalf("unexpected tf1 levels: %+v", ev.Timeframes["tf1"])
	}
}

func TestValidateAcceptsEveryCanonicalTriple(t *testing.T) {
	v := NewValidator()
	for _, c := range CanonicalTriples {
		p := btcPayload()
		p["trend_score"] = float64(c.Score)
		p["uptrend_count"] = float64(c.Up)
		p["downtrend_count"] = float64(c.Down)
		if _, err := v.Validate(p); err != nil {
			t.Errorf("triple %+v rejected: %v", c, err)
		}
	}
}

func TestValidateCanonicalTripleStillNeedsRoomInTotal(t *testing.T) {
	// (5,5,3) is canonical but needs eight active timeframes
	p := btcPayload()
	p["trend_score"] = float64(5)
	p["uptrend_count"] = float64(5)
	p["downtrend_count"] = float64(3)
	p["total_active_timeframes"] = float64(7)

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.Has(RuleCountsExceedTotal) {
		t.Fatalf("expected counts_exceed_total, got %+v", verr.Violations)
	}
	if verr.Has(RuleScoreMismatch) || verr.Has(RuleNonCanonical) {
		t.Fatalf("canonical triple must not report score rules: %+v", verr.Violations)
	}
}

func TestValidateRejectsNonCanonicalConsistentTriple(t *testing.T) {
	// 5 - 0 = 5 is arithmetic-consistent but not a score the tool emits
	p := btcPayload()
	p["trend_score"] = float64(5)
	p["uptrend_count"] = float64(5)
	p["downtrend_count"] = float64(0)

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.Has(RuleNonCanonical) {
		t.Fatalf("expected non-canonical violation, got %+v", verr.Violations)
	}
	if verr.Has(RuleScoreMismatch) {
		t.Fatalf("score matches counts, did not expect mismatch: %+v", verr.Violations)
	}
}

func TestValidateRejectsCountsAboveTotal(t *testing.T) {
	p := btcPayload()
	p["total_active_timeframes"] = float64(6)

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.Has(RuleCountsExceedTotal) {
		t.Fatalf("expected counts_exceed_total, got %+v", verr.Violations)
	}
}

func TestValidateRejectsScoreMismatch(t *testing.T) {
	p := btcPayload()
	p["trend_score"] = float64(0)
	p["uptrend_count"] = float64(3)
	p["downtrend_count"] = float64(5)

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.Has(RuleScoreMismatch) {
		t.Fatalf("expected score_mismatch, got %+v", verr.Violations)
	}
	if !verr.Has(RuleNonCanonical) {
		t.Fatalf("expected non_canonical_combination, got %+v", verr.Violations)
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	p := btcPayload()
	delete(p, "pattern")
	p["trend_score"] = "high"
	p["price"] = float64(-1)
	p["trend_direction"] = "SIDEWAYS"
	p["symbol"] = "BT"

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))

	for _, field := range []string{"pattern", "trend_score", "price", "trend_direction", "symbol"} {
		if !verr.HasField(field) {
			t.Errorf("expected violation for %s, got %+v", field, verr.Violations)
		}
	}
	// arithmetic checks need every count decoded
	if verr.Has(RuleScoreMismatch) || verr.Has(RuleNonCanonical) {
		t.Errorf("cross-field rules should be skipped when trend_score is unreadable: %+v", verr.Violations)
	}
}

func TestValidateTypeErrors(t *testing.T) {
	p := btcPayload()
	p["uptrend_count"] = float64(7.5)
	p["alignment_ratio"] = float64(1)

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	for _, field := range []string{"uptrend_count", "alignment_ratio"} {
		found := false
		for _, v := range verr.Violations {
			if v.Field == field && v.Rule == RuleType {
				found = true
			}
		}
		if !found {
			t.Errorf("expected type violation for %s, got %+v", field, verr.Violations)
		}
	}
}

func TestValidateAcceptsNumericStringsAndJSONNumbers(t *testing.T) {
	p := btcPayload()
	p["price"] = "67250.50"
	p["trend_score"] = json.Number("8")
	p["uptrend_count"] = "8"

	ev, err := NewValidator().Validate(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TrendScore != 8 || ev.UptrendCount != 8 {
		t.Fatalf("unexpected counts: %+v", ev)
	}
}

func TestValidateRejectsUnknownKeys(t *testing.T) {
	p := btcPayload()
	p["volume"] = float64(12)
	p["timeframes"].(map[string]interface{})["tf1"].(map[string]interface{})["color"] = "green"

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.HasField("volume") {
		t.Fatalf("expected unknown key violation, got %+v", verr.Violations)
	}
	if !verr.HasField("timeframes[tf1].color") {
		t.Fatalf("expected nested unknown key violation, got %+v", verr.Violations)
	}
}

func TestValidateReportsUnknownKeysInOrder(t *testing.T) {
	p := btcPayload()
	for _, k := range []string{"zeta", "alpha", "mid"} {
		p[k] = true
	}

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	var got []string
	for _, v := range verr.Violations {
		if v.Rule == RuleUnknown {
			got = append(got, v.Field)
		}
	}
	want := []string{"alpha", "mid", "zeta"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unknown keys reported as %v, want %v", got, want)
	}
}

func TestValidateTimeframeEntries(t *testing.T) {
	p := btcPayload()
	tfs := p["timeframes"].(map[string]interface{})
	tfs["tf2"] = map[string]interface{}{"status": "SIDEWAYS"}

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.HasField("timeframes[tf2].period") {
		t.Errorf("expected missing period violation, got %+v", verr.Violations)
	}
	if !verr.HasField("timeframes[tf2].status") {
		t.Errorf("expected bad status violation, got %+v", verr.Violations)
	}
}

func TestValidateTimestamp(t *testing.T) {
	v := NewValidator()

	p := btcPayload()
	p["timestamp"] = "2024-03-01T12:30:00Z"
	ev, err := v.Validate(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Timestamp == nil || ev.Timestamp.Hour() != 12 {
		t.Fatalf("unexpected timestamp: %v", ev.Timestamp)
	}

	p["timestamp"] = "yesterday"
	verr := mustValidationError(t, mustErr(v.Validate(p)))
	if !verr.Has(RuleDate) {
		t.Fatalf("expected iso_date violation, got %+v", verr.Violations)
	}
}

func TestValidateNilPayload(t *testing.T) {
	_, err := NewValidator().Validate(nil)
	mustValidationError(t, err)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Violations: []Violation{
		{Field: "a", Rule: RuleRequired, Message: "a is required"},
		{Field: "b", Rule: RuleRequired, Message: "b is required"},
	}}
	if !strings.Contains(err.Error(), "a is required; b is required") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestSnapshotKeepsExactDecimals(t *testing.T) {
	p := btcPayload()
	p["price"] = "0.00001234"
	ev, err := NewValidator().Validate(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := ev.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"price":0.00001234`) {
		t.Fatalf("snapshot lost price precision: %s", raw)
	}
}

func mustErr(_ *Event, err error) error { return err }

func TestValidatePriceMustFitStorage(t *testing.T) {
	cases := []struct {
		price string
		rule  string
	}{
		{"0.000000001", RuleScale},
		{"67250.123456789", RuleScale},
		{"1000000000000", RuleMax},
		{"1000000000000000", RuleMax},
	}
	v := NewValidator()
	for _, c := range cases {
		p := btcPayload()
		p["price"] = json.Number(c.price)
		verr := mustValidationError(t, mustErr(v.Validate(p)))
		if !verr.Has(c.rule) || !verr.HasField("price") {
			t.Errorf("price %s: expected %s on price, got %+v", c.price, c.rule, verr.Violations)
		}
	}

	for _, ok := range []string{"0.00000001", "999999999999.99999999", "67250.12345678000"} {
		p := btcPayload()
		p["price"] = json.Number(ok)
		if _, err := v.Validate(p); err != nil {
			t.Errorf("price %s should be accepted: %v", ok, err)
		}
	}
}

func TestValidateLevelsMustFitStorage(t *testing.T) {
	p := btcPayload()
	tfs := p["timeframes"].(map[string]interface{})
	tfs["tf1"] = map[string]interface{}{"period": "1", "status": "UP", "support": json.Number("0.123456789")}
	tfs["tf6"] = map[string]interface{}{"period": "D", "status": "UP", "resistance": json.Number("5000000000000")}

	verr := mustValidationError(t, mustErr(NewValidator().Validate(p)))
	if !verr.HasField("timeframes[tf1].support") || !verr.Has(RuleScale) {
		t.Errorf("expected scale violation on tf1 support, got %+v", verr.Violations)
	}
	if !verr.HasField("timeframes[tf6].resistance") || !verr.Has(RuleMax) {
		t.Errorf("expected max violation on tf6 resistance, got %+v", verr.Violations)
	}
}

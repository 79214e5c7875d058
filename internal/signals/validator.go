/**
 * @description
 * Validator for inbound RHINO score payloads.
 * Checks field presence and types, then struct rules, then the score arithmetic,
 * and reports every violation at once. Has no side effects.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: struct rules
 * - github.com/shopspring/decimal: price parsing
 */

package signals

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// fieldOrder fixes the order fields are inspected in so reports are stable.
var fieldOrder = []string{
	KeySymbol,
	KeyTrendScore,
	KeyPreviousScore,
	KeyPrice,
	KeyPattern,
	KeyTrendDirection,
	KeyTotalActiveTimeframes,
	KeyUptrendCount,
	KeyDowntrendCount,
	KeyAlignmentRatio,
	KeyScoreDescription,
	KeyChartTimeframe,
	KeyTimeframes,
	KeyTimestamp,
	KeyExchange,
	KeyAssetType,
	KeyDisplayName,
}

var knownKeys = func() map[string]struct{} {
	m := make(map[string]struct{}, len(fieldOrder))
	for _, k := range fieldOrder {
		m[k] = struct{}{}
	}
	return m
}()

// Price columns are decimal(20,8): at most 8 fractional and 12 integer digits.
const decimalScale = 8

var decimalLimit = decimal.New(1, 12)

// Validator turns raw payload maps into typed events. It is safe for
// concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns the typed event or a *ValidationError listing every
// broken rule.
func (v *Validator) Validate(raw map[string]interface{}) (*Event, error) {
	if raw == nil {
		return nil, &ValidationError{Violations: []Violation{{
			Field: "", Rule: RuleRequired, Message: "payload is required",
		}}}
	}

	r := &reader{raw: raw}
	ev := &Event{}

	ev.Symbol, _ = r.requiredString(KeySymbol)
	score, scoreOK := r.requiredInt(KeyTrendScore)
	ev.TrendScore = score
	ev.PreviousScore = r.optionalInt(KeyPreviousScore)
	ev.Price, _ = r.requiredDecimal(KeyPrice)
	ev.Pattern, _ = r.requiredString(KeyPattern)
	ev.TrendDirection, _ = r.requiredString(KeyTrendDirection)
	total, totalOK := r.requiredInt(KeyTotalActiveTimeframes)
	ev.TotalActiveTimeframes = total
	up, upOK := r.requiredInt(KeyUptrendCount)
	ev.UptrendCount = up
	down, downOK := r.requiredInt(KeyDowntrendCount)
	ev.DowntrendCount = down
	ev.AlignmentRatio, _ = r.requiredString(KeyAlignmentRatio)
	ev.ScoreDescription, _ = r.requiredString(KeyScoreDescription)
	ev.ChartTimeframe, _ = r.requiredString(KeyChartTimeframe)
	ev.Timeframes = r.timeframes(KeyTimeframes)
	ev.Timestamp = r.optionalTime(KeyTimestamp)
	ev.Exchange = r.optionalString(KeyExchange)
	ev.AssetType = r.optionalString(KeyAssetType)
	ev.DisplayName = r.optionalString(KeyDisplayName)
	r.rejectUnknown()

	violations := r.violations

	if err := v.validate.Struct(ev); err != nil {
		violations = append(violations, v.translate(err, r.failed)...)
	}

	if _, seen := r.failed[KeyPrice]; !seen {
		if !ev.Price.IsPositive() {
			violations = append(violations, Violation{
				Field: KeyPrice, Rule: RulePositive, Message: "price must be a positive number",
			})
		} else {
			violations = append(violations, storableViolations(KeyPrice, ev.Price)...)
		}
	}

	if scoreOK && upOK && downOK && totalOK {
		violations = append(violations, crossFieldViolations(score, up, down, total)...)
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return ev, nil
}

// crossFieldViolations applies the RHINO arithmetic rules. The canonical
// table is authoritative: a listed triple is accepted even where its score
// is not up minus down, and the subtraction rule only reports triples
// outside the table.
func crossFieldViolations(score, up, down, total int) []Violation {
	var out []Violation
	if up+down > total {
		out = append(out, Violation{
			Field: KeyUptrendCount,
			Rule:  RuleCountsExceedTotal,
			Message: fmt.Sprintf("uptrend_count (%d) + downtrend_count (%d) cannot exceed total_active_timeframes (%d)",
				up, down, total),
		})
	}
	if IsCanonical(score, up, down) {
		return out
	}
	if expected := up - down; score != expected {
		out = append(out, Violation{
			Field: KeyTrendScore,
			Rule:  RuleScoreMismatch,
			Message: fmt.Sprintf("trend_score (%d) must equal uptrend_count (%d) - downtrend_count (%d) = %d",
				score, up, down, expected),
		})
	}
	out = append(out, Violation{
		Field: KeyTrendScore,
		Rule:  RuleNonCanonical,
		Message: fmt.Sprintf("invalid combination: score=%d, up=%d, down=%d. Only valid RHINO score combinations allowed",
			score, up, down),
	})
	return out
}

// storableViolations reports values a decimal(20,8) column would round or
// refuse. Trailing zeros beyond the eighth digit are fine.
func storableViolations(field string, d decimal.Decimal) []Violation {
	var out []Violation
	if !d.Round(decimalScale).Equal(d) {
		out = append(out, Violation{
			Field: field, Rule: RuleScale,
			Message: fmt.Sprintf("%s must have at most %d decimal places", field, decimalScale),
		})
	}
	if d.Abs().GreaterThanOrEqual(decimalLimit) {
		out = append(out, Violation{
			Field: field, Rule: RuleMax,
			Message: fmt.Sprintf("%s must be less than %s", field, decimalLimit),
		})
	}
	return out
}

// translate maps validator errors to violations, skipping fields that
// already failed presence or type checks.
func (v *Validator) translate(err error, failed map[string]struct{}) []Violation {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []Violation{{Rule: RuleType, Message: err.Error()}}
	}

	out := make([]Violation, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.Namespace(), "Event.")
		top := field
		if i := strings.IndexAny(top, ".["); i >= 0 {
			top = top[:i]
		}
		if _, skip := failed[top]; skip {
			continue
		}
		if _, skip := failed[field]; skip {
			continue
		}
		out = append(out, Violation{
			Field:   field,
			Rule:    fe.Tag(),
			Message: errorMessage(field, fe),
		})
	}
	return out
}

func errorMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// reader extracts typed values from the raw map and records presence/type
// violations as it goes.
type reader struct {
	raw        map[string]interface{}
	violations []Violation
	failed     map[string]struct{}
}

func (r *reader) fail(field, rule, msg string) {
	if r.failed == nil {
		r.failed = make(map[string]struct{})
	}
	r.failed[field] = struct{}{}
	r.violations = append(r.violations, Violation{Field: field, Rule: rule, Message: msg})
}

func (r *reader) lookup(key string) (interface{}, bool) {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *reader) requiredString(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, RuleRequired, fmt.Sprintf("%s is required", key))
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be a string", key))
		return "", false
	}
	return s, true
}

func (r *reader) optionalString(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be a string", key))
		return ""
	}
	return s
}

func (r *reader) requiredInt(key string) (int, bool) {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, RuleRequired, fmt.Sprintf("%s is required", key))
		return 0, false
	}
	n, ok := toInt(v)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be an integer", key))
		return 0, false
	}
	return n, true
}

func (r *reader) optionalInt(key string) *int {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	n, ok := toInt(v)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be an integer", key))
		return nil
	}
	return &n
}

func (r *reader) requiredDecimal(key string) (decimal.Decimal, bool) {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, RuleRequired, fmt.Sprintf("%s is required", key))
		return decimal.Zero, false
	}
	d, ok := toDecimal(v)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be a number", key))
		return decimal.Zero, false
	}
	return d, true
}

func (r *reader) optionalTime(key string) *time.Time {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be a string", key))
		return nil
	}
	t, ok := parseISODate(s)
	if !ok {
		r.fail(key, RuleDate, fmt.Sprintf("%s must be a valid ISO 8601 date", key))
		return nil
	}
	return &t
}

func (r *reader) timeframes(key string) map[string]TimeframeEntry {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, RuleRequired, fmt.Sprintf("%s is required", key))
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		r.fail(key, RuleType, fmt.Sprintf("%s must be an object", key))
		return nil
	}

	out := make(map[string]TimeframeEntry, len(m))
	for tfKey, entry := range m {
		path := fmt.Sprintf("%s[%s]", key, tfKey)
		em, ok := entry.(map[string]interface{})
		if !ok {
			r.fail(path, RuleType, fmt.Sprintf("%s must be an object", path))
			continue
		}

		var tf TimeframeEntry
		if p, ok := em["period"]; ok && p != nil {
			if s, ok := p.(string); ok {
				tf.Period = s
			} else {
				r.fail(path+".period", RuleType, fmt.Sprintf("%s.period must be a string", path))
			}
		}
		if st, ok := em["status"]; ok && st != nil {
			if s, ok := st.(string); ok {
				tf.Status = s
			} else {
				r.fail(path+".status", RuleType, fmt.Sprintf("%s.status must be a string", path))
			}
		}
		tf.Support = r.level(em, path, "support")
		tf.Resistance = r.level(em, path, "resistance")
		for k := range em {
			switch k {
			case "period", "status", "support", "resistance":
			default:
				r.fail(path+"."+k, RuleUnknown, fmt.Sprintf("%s.%s is not allowed", path, k))
			}
		}
		out[tfKey] = tf
	}
	return out
}

func (r *reader) level(em map[string]interface{}, path, name string) decimal.NullDecimal {
	v, ok := em[name]
	if !ok || v == nil {
		return decimal.NullDecimal{}
	}
	d, ok := toDecimal(v)
	if !ok {
		r.fail(path+"."+name, RuleType, fmt.Sprintf("%s.%s must be a number", path, name))
		return decimal.NullDecimal{}
	}
	if bad := storableViolations(path+"."+name, d); len(bad) > 0 {
		for _, viol := range bad {
			r.fail(viol.Field, viol.Rule, viol.Message)
		}
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (r *reader) rejectUnknown() {
	var unknown []string
	for k := range r.raw {
		if _, ok := knownKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	// map iteration order is random; keep reports stable
	sort.Strings(unknown)
	for _, k := range unknown {
		r.fail(k, RuleUnknown, fmt.Sprintf("%s is not allowed", k))
	}
}

// toInt accepts JSON numbers and numeric strings that hold an integral value.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// toDecimal accepts JSON numbers and numeric strings.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

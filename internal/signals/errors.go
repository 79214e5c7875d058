package signals

import (
	"fmt"
	"strings"
)

// Violation rule identifiers
const (
	RuleRequired          = "required"
	RuleType              = "type"
	RuleUnknown           = "unknown"
	RuleEnum              = "oneof"
	RuleMin               = "min"
	RuleMax               = "max"
	RulePositive          = "positive"
	RuleScale             = "scale"
	RuleDate              = "iso_date"
	RuleCountsExceedTotal = "counts_exceed_total"
	RuleScoreMismatch     = "score_mismatch"
	RuleNonCanonical      = "non_canonical_combination"
)

// Violation is one broken field-level or cross-field rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in a payload.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("invalid signal payload (%d violations): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Has reports whether any violation matches rule.
func (e *ValidationError) Has(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// HasField reports whether any violation targets field.
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

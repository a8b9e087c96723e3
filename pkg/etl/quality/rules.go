// Package quality evaluates rule sets against snapshots before or after a
// batch commit. The rule set is closed: completeness, uniqueness, range,
// pattern and custom, each implementing one Evaluate contract.
package quality

import (
	"fmt"
	"regexp"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

const moduleName = "quality"

// RuleResult is the outcome of evaluating one rule.
type RuleResult struct {
	Rule    string
	Passed  bool
	Message string
}

// Report aggregates the results of one validation pass.
type Report struct {
	Valid      bool
	TotalRules int
	Passed     int
	Failed     int
	Results    []RuleResult
}

// Rule evaluates one quality constraint against a snapshot.
type Rule interface {
	Name() string
	Evaluate(snapshot model.Snapshot) RuleResult
}

// CompletenessRule requires at least Threshold (0..1) of the rows to carry a
// non-nil value in Column.
type CompletenessRule struct {
	Column    string
	Threshold float64
}

// Name implements Rule.
func (r *CompletenessRule) Name() string {
	return fmt.Sprintf("completeness(%s>=%.2f)", r.Column, r.Threshold)
}

// Evaluate implements Rule.
func (r *CompletenessRule) Evaluate(snapshot model.Snapshot) RuleResult {
	if len(snapshot) == 0 {
		return RuleResult{Rule: r.Name(), Passed: true, Message: "empty snapshot"}
	}
	present := 0
	for _, record := range snapshot {
		if v, ok := record[r.Column]; ok && v != nil && v != "" {
			present++
		}
	}
	ratio := float64(present) / float64(len(snapshot))
	if ratio < r.Threshold {
		return RuleResult{
			Rule:    r.Name(),
			Message: fmt.Sprintf("column %q is %.1f%% complete, below threshold %.1f%%", r.Column, ratio*100, r.Threshold*100),
		}
	}
	return RuleResult{Rule: r.Name(), Passed: true}
}

// UniquenessRule requires Column values to be distinct across the snapshot.
type UniquenessRule struct {
	Column string
}

// Name implements Rule.
func (r *UniquenessRule) Name() string {
	return fmt.Sprintf("uniqueness(%s)", r.Column)
}

// Evaluate implements Rule.
func (r *UniquenessRule) Evaluate(snapshot model.Snapshot) RuleResult {
	seen := make(map[string]bool, len(snapshot))
	duplicates := 0
	for _, record := range snapshot {
		key := fmt.Sprint(record[r.Column])
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true
	}
	if duplicates > 0 {
		return RuleResult{
			Rule:    r.Name(),
			Message: fmt.Sprintf("column %q has %d duplicate values", r.Column, duplicates),
		}
	}
	return RuleResult{Rule: r.Name(), Passed: true}
}

// RangeRule requires numeric Column values to lie within [Min, Max]. A nil
// bound is open.
type RangeRule struct {
	Column string
	Min    *float64
	Max    *float64
}

// Name implements Rule.
func (r *RangeRule) Name() string {
	return fmt.Sprintf("range(%s)", r.Column)
}

// Evaluate implements Rule.
func (r *RangeRule) Evaluate(snapshot model.Snapshot) RuleResult {
	violations := 0
	for _, record := range snapshot {
		value, ok := toFloat(record[r.Column])
		if !ok {
			continue
		}
		if r.Min != nil && value < *r.Min {
			violations++
			continue
		}
		if r.Max != nil && value > *r.Max {
			violations++
		}
	}
	if violations > 0 {
		return RuleResult{
			Rule:    r.Name(),
			Message: fmt.Sprintf("column %q has %d values out of range", r.Column, violations),
		}
	}
	return RuleResult{Rule: r.Name(), Passed: true}
}

// PatternRule requires string Column values to match a regular expression.
type PatternRule struct {
	Column  string
	pattern *regexp.Regexp
}

// NewPatternRule compiles expr and creates a PatternRule.
func NewPatternRule(column, expr string) (*PatternRule, error) {
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("invalid pattern %q for column %q", expr, column), err, false, false)
	}
	return &PatternRule{Column: column, pattern: pattern}, nil
}

// Name implements Rule.
func (r *PatternRule) Name() string {
	return fmt.Sprintf("pattern(%s~%s)", r.Column, r.pattern.String())
}

// Evaluate implements Rule.
func (r *PatternRule) Evaluate(snapshot model.Snapshot) RuleResult {
	violations := 0
	for _, record := range snapshot {
		value, ok := record[r.Column]
		if !ok || value == nil {
			continue
		}
		if !r.pattern.MatchString(fmt.Sprint(value)) {
			violations++
		}
	}
	if violations > 0 {
		return RuleResult{
			Rule:    r.Name(),
			Message: fmt.Sprintf("column %q has %d values not matching %q", r.Column, violations, r.pattern.String()),
		}
	}
	return RuleResult{Rule: r.Name(), Passed: true}
}

// CustomRule wraps an arbitrary predicate over the snapshot.
type CustomRule struct {
	RuleName string
	Fn       func(snapshot model.Snapshot) (bool, string)
}

// Name implements Rule.
func (r *CustomRule) Name() string {
	return fmt.Sprintf("custom(%s)", r.RuleName)
}

// Evaluate implements Rule.
func (r *CustomRule) Evaluate(snapshot model.Snapshot) RuleResult {
	passed, message := r.Fn(snapshot)
	return RuleResult{Rule: r.Name(), Passed: passed, Message: message}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Verify interfaces
var (
	_ Rule = (*CompletenessRule)(nil)
	_ Rule = (*UniquenessRule)(nil)
	_ Rule = (*RangeRule)(nil)
	_ Rule = (*PatternRule)(nil)
	_ Rule = (*CustomRule)(nil)
)

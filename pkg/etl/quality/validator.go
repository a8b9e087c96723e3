package quality

import (
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// Validator runs a rule set over snapshots.
type Validator struct {
	rules []Rule
}

// NewValidator creates a Validator over the given rules.
func NewValidator(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// AddRule appends a rule to the set.
func (v *Validator) AddRule(rule Rule) {
	v.rules = append(v.rules, rule)
}

// Validate evaluates every rule against the snapshot and aggregates a Report.
func (v *Validator) Validate(snapshot model.Snapshot) Report {
	report := Report{Valid: true, TotalRules: len(v.rules)}
	for _, rule := range v.rules {
		result := rule.Evaluate(snapshot)
		report.Results = append(report.Results, result)
		if result.Passed {
			report.Passed++
			continue
		}
		report.Failed++
		report.Valid = false
		logger.Warnf("Quality rule %s failed: %s", result.Rule, result.Message)
	}
	return report
}

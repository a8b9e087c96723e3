package quality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	"github.com/vitoriamariadb/tidal/pkg/etl/quality"
)

func TestCompletenessRule(t *testing.T) {
	rule := &quality.CompletenessRule{Column: "email", Threshold: 0.75}

	passing := model.Snapshot{
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "c@example.com"},
		{"email": nil},
	}
	assert.True(t, rule.Evaluate(passing).Passed)

	failing := model.Snapshot{
		{"email": "a@example.com"},
		{"email": nil},
		{"email": ""},
		{"other": 1},
	}
	result := rule.Evaluate(failing)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "email")
}

func TestCompletenessRuleEmptySnapshotPasses(t *testing.T) {
	rule := &quality.CompletenessRule{Column: "email", Threshold: 1.0}
	assert.True(t, rule.Evaluate(nil).Passed)
}

func TestUniquenessRule(t *testing.T) {
	rule := &quality.UniquenessRule{Column: "order_id"}

	unique := model.Snapshot{{"order_id": "o-1"}, {"order_id": "o-2"}}
	assert.True(t, rule.Evaluate(unique).Passed)

	duplicated := model.Snapshot{{"order_id": "o-1"}, {"order_id": "o-1"}, {"order_id": "o-2"}}
	result := rule.Evaluate(duplicated)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "1 duplicate")
}

func TestRangeRule(t *testing.T) {
	min, max := 0.0, 100.0
	rule := &quality.RangeRule{Column: "total", Min: &min, Max: &max}

	assert.True(t, rule.Evaluate(model.Snapshot{{"total": 50.0}, {"total": 0}, {"total": 100}}).Passed)
	assert.False(t, rule.Evaluate(model.Snapshot{{"total": -1.0}}).Passed)
	assert.False(t, rule.Evaluate(model.Snapshot{{"total": 100.5}}).Passed)
}

func TestRangeRuleOpenBounds(t *testing.T) {
	min := 0.0
	rule := &quality.RangeRule{Column: "total", Min: &min}
	assert.True(t, rule.Evaluate(model.Snapshot{{"total": 1e9}}).Passed)
	assert.False(t, rule.Evaluate(model.Snapshot{{"total": -0.5}}).Passed)
}

func TestRangeRuleSkipsNonNumericValues(t *testing.T) {
	min := 0.0
	rule := &quality.RangeRule{Column: "total", Min: &min}
	assert.True(t, rule.Evaluate(model.Snapshot{{"total": "n/a"}, {"total": nil}}).Passed)
}

func TestPatternRule(t *testing.T) {
	rule, err := quality.NewPatternRule("sku", `^SKU-\d{4}$`)
	require.NoError(t, err)

	assert.True(t, rule.Evaluate(model.Snapshot{{"sku": "SKU-0001"}}).Passed)
	result := rule.Evaluate(model.Snapshot{{"sku": "SKU-1"}, {"sku": "SKU-0002"}})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "1 values")
}

func TestPatternRuleInvalidExpression(t *testing.T) {
	_, err := quality.NewPatternRule("sku", "[unclosed")
	assert.Error(t, err)
}

func TestCustomRule(t *testing.T) {
	rule := &quality.CustomRule{
		RuleName: "non-empty",
		Fn: func(snapshot model.Snapshot) (bool, string) {
			if len(snapshot) == 0 {
				return false, "snapshot is empty"
			}
			return true, ""
		},
	}
	assert.True(t, rule.Evaluate(model.Snapshot{{"id": 1}}).Passed)
	assert.False(t, rule.Evaluate(nil).Passed)
}

func TestValidatorAggregatesReport(t *testing.T) {
	min := 0.0
	v := quality.NewValidator(
		&quality.CompletenessRule{Column: "order_id", Threshold: 1.0},
		&quality.UniquenessRule{Column: "order_id"},
		&quality.RangeRule{Column: "total", Min: &min},
	)

	report := v.Validate(model.Snapshot{
		{"order_id": "o-1", "total": 10.0},
		{"order_id": "o-1", "total": -5.0},
	})
	assert.False(t, report.Valid)
	assert.Equal(t, 3, report.TotalRules)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Results, 3)
}

func TestValidatorWithNoRules(t *testing.T) {
	report := quality.NewValidator().Validate(model.Snapshot{{"id": 1}})
	assert.True(t, report.Valid)
	assert.Zero(t, report.TotalRules)
}

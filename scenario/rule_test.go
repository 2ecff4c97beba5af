package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Rule
	}{
		{
			text: "if period > 36 and value > 5 then value = value * 0.9",
			want: Rule{
				Conditions: []Condition{{FieldPeriod, OpGT, 36}, {FieldValue, OpGT, 5}},
				Action:     Action{Kind: ActionMultiply, Operand: 0.9},
			},
		},
		{
			text: "if period > 48 then value = Math.max(1, value)",
			want: Rule{
				Conditions: []Condition{{FieldPeriod, OpGT, 48}},
				Action:     Action{Kind: ActionFloor, Operand: 1},
			},
		},
		{
			text: "if value >= 10 or period <= 2 then value = min(value, 7)",
			want: Rule{
				Conditions: []Condition{{FieldValue, OpGE, 10}, {FieldPeriod, OpLE, 2}},
				Any:        true,
				Action:     Action{Kind: ActionCap, Operand: 7},
			},
		},
		{
			text: "IF period == 0 THEN value = 3",
			want: Rule{
				Conditions: []Condition{{FieldPeriod, OpEQ, 0}},
				Action:     Action{Kind: ActionSet, Operand: 3},
			},
		},
		{
			text: "if period < 12 then value = value - 1.5",
			want: Rule{
				Conditions: []Condition{{FieldPeriod, OpLT, 12}},
				Action:     Action{Kind: ActionAdd, Operand: -1.5},
			},
		},
		{
			text: "if period < 12 then value = value / 4",
			want: Rule{
				Conditions: []Condition{{FieldPeriod, OpLT, 12}},
				Action:     Action{Kind: ActionMultiply, Operand: 0.25},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseRule(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRule_Rejects(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"value = 3",
		"if period > 3 value = 1",
		"if balance > 3 then value = 1",
		"if period ~ 3 then value = 1",
		"if period > x then value = 1",
		"if period > 1 and value > 1 or period < 9 then value = 1",
		"if period > 1 then period = 1",
		"if period > 1 then value = value ^ 2",
		"if period > 1 then value = value / 0",
		"if period > 1 then value = max(1, 2)",
		"if period > 1 then value = process.exit()",
	} {
		_, err := ParseRule(text)
		assert.Error(t, err, text)
	}
}

func TestRuleMatchesAndApply(t *testing.T) {
	t.Parallel()

	r := Rule{
		Conditions: []Condition{{FieldPeriod, OpGE, 2}, {FieldValue, OpLT, 1}},
		Any:        true,
		Action:     Action{Kind: ActionAdd, Operand: 1},
	}
	assert.True(t, r.Matches(0, 0.5))
	assert.True(t, r.Matches(3, 9))
	assert.False(t, r.Matches(1, 9))
	assert.True(t, Rule{}.Matches(5, 5))
	assert.Equal(t, 3.0, r.Action.Apply(2))
	assert.False(t, Op("!=").Compare(1, 2))
}

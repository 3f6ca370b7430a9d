package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passed(rep Report) []bool {
	out := make([]bool, 0, len(rep.Rules))
	for _, r := range rep.Rules {
		out = append(out, r.Passed)
	}
	return out
}

func TestEvaluate_Valid(t *testing.T) {
	t.Parallel()

	rep := Evaluate("Abc123@")
	require.True(t, rep.Valid)
	require.Len(t, rep.Rules, 5)
	assert.Equal(t, []bool{true, true, true, true, true}, passed(rep))
	assert.Empty(t, rep.Failed())
}

func TestEvaluate_RuleOrderAndLabels(t *testing.T) {
	t.Parallel()

	rep := Evaluate("")
	labels := make([]string, 0, len(rep.Rules))
	for _, r := range rep.Rules {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{RuleLength, RuleDigit, RuleUpper, RuleLower, RuleSpecial}, labels)
	assert.False(t, rep.Valid)
	assert.Equal(t, []bool{false, false, false, false, false}, passed(rep))
}

func TestEvaluate_Breakdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pw   string
		want []bool
	}{
		{"abc", []bool{false, false, false, true, false}},
		{"abcdef", []bool{true, false, false, true, false}},
		{"ABCDEF1", []bool{true, true, true, false, false}},
		{"abcdefG!", []bool{true, false, true, true, true}},
		{"123456", []bool{true, true, false, false, false}},
		{"Aa1#xyz", []bool{true, true, true, true, false}},
		{"Aa1%", []bool{false, true, true, true, true}},
		{"Zz9&Zz9&", []bool{true, true, true, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.pw, func(t *testing.T) {
			rep := Evaluate(tt.pw)
			assert.Equal(t, tt.want, passed(rep))
			assert.Equal(t, !contains(tt.want, false), rep.Valid)
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	for _, pw := range []string{"abc", "Abc123@", "ÄÖÜäöü1!", "      "} {
		first := Evaluate(pw)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Evaluate(pw))
		}
	}
}

func TestEvaluate_LengthCountsCharacters(t *testing.T) {
	t.Parallel()

	// five multi-byte letters plus a digit: six characters, more than six bytes
	rep := Evaluate("ééééé1")
	assert.True(t, rep.Rules[0].Passed)
	assert.False(t, Evaluate("éé1").Rules[0].Passed)
}

func contains(xs []bool, v bool) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

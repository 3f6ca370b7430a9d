// Package password evaluates password strings against the sign-up rule set.
package password

import (
	"github.com/go-playground/validator/v10"
)

// SpecialChars is the set a password must draw at least one character from.
const SpecialChars = "@$!%*?&"

// Rule labels, in evaluation order.
const (
	RuleLength    = "At least 6 characters"
	RuleDigit     = "At least one number"
	RuleUpper     = "At least one uppercase letter"
	RuleLower     = "At least one lowercase letter"
	RuleSpecial   = "At least one special character (" + SpecialChars + ")"
	minPasswordLn = "6"
)

type rule struct {
	label string
	tag   string
}

var rules = []rule{
	{RuleLength, "min=" + minPasswordLn},
	{RuleDigit, "containsany=0123456789"},
	{RuleUpper, "containsany=ABCDEFGHIJKLMNOPQRSTUVWXYZ"},
	{RuleLower, "containsany=abcdefghijklmnopqrstuvwxyz"},
	{RuleSpecial, "containsany=" + SpecialChars},
}

var validate = validator.New()

// RuleResult is the outcome of a single rule.
type RuleResult struct {
	Label  string
	Passed bool
}

// Report is the full evaluation of one password.
type Report struct {
	Valid bool
	Rules []RuleResult
}

// Failed returns labels of the rules that did not pass.
func (r Report) Failed() []string {
	var out []string
	for _, rr := range r.Rules {
		if !rr.Passed {
			out = append(out, rr.Label)
		}
	}
	return out
}

// Evaluate checks every rule independently and reports them in fixed order.
func Evaluate(pw string) Report {
	rep := Report{Valid: true, Rules: make([]RuleResult, 0, len(rules))}
	for _, r := range rules {
		ok := validate.Var(pw, r.tag) == nil
		rep.Rules = append(rep.Rules, RuleResult{Label: r.label, Passed: ok})
		rep.Valid = rep.Valid && ok
	}
	return rep
}

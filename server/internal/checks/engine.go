package checks

import (
	"fmt"
	"log/slog"

	"github.com/pgilab/pgilab/pkg/types"
)

// Severities accepted in Rule.Severity.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Rule is one named check as it appears in the config file.
type Rule struct {
	Name      string `yaml:"name"      json:"name"`
	Condition string `yaml:"condition" json:"condition"`
	Severity  string `yaml:"severity"  json:"severity"` // info | warning; default warning
}

// DefaultRules flag suspicious PGI values and records excluded from PGI.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "stimulation", Condition: "pgi < 0", Severity: SeverityWarning},
		{Name: "over_inhibition", Condition: "pgi > 100", Severity: SeverityWarning},
		{Name: "zero_control", Condition: "control_mm == 0", Severity: SeverityInfo},
	}
}

// Finding is one record matching one rule.
type Finding struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Index    int     `json:"index"`
	Isolate  string  `json:"isolate"`
	Fungus   string  `json:"fungus"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

type compiled struct {
	rule Rule
	cond Condition
}

// Engine evaluates a fixed rule set. It holds no state between calls and
// is safe for concurrent use.
type Engine struct {
	rules []compiled
}

// New compiles rules. An empty rule set is valid; Evaluate then returns nil.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{rules: make([]compiled, 0, len(rules))}
	for _, r := range rules {
		cond, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = SeverityWarning
		}
		e.rules = append(e.rules, compiled{rule: r, cond: cond})
	}
	return e, nil
}

// Rules returns the rule set with defaults applied.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// Evaluate tests every rule against every record. Findings are ordered by
// record index, then by rule order.
func (e *Engine) Evaluate(records []types.Record) []Finding {
	var out []Finding
	for i, rec := range records {
		for _, c := range e.rules {
			ok, v := c.cond.Match(rec)
			if !ok {
				continue
			}
			out = append(out, Finding{
				Rule:     c.rule.Name,
				Severity: c.rule.Severity,
				Index:    i,
				Isolate:  rec.Isolate,
				Fungus:   rec.Fungus,
				Value:    v,
				Message: fmt.Sprintf("[%s] %s: index %d (%s vs %s), %s = %.2f",
					c.rule.Severity, c.rule.Name, i, rec.Isolate, rec.Fungus, c.cond.Field, v),
			})
		}
	}
	if len(out) > 0 {
		slog.Debug("checks: evaluated", "records", len(records), "findings", len(out))
	}
	return out
}

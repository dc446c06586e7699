package shrink

import (
	"fmt"
	"math"
	"strings"
)

// Rule selects a threshold estimator.
type Rule int

const (
	RuleNone Rule = iota
	RuleUniversal
	RuleBayes
	RuleSURE
	RuleHybridSURE
)

func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "none"
	case RuleUniversal:
		return "universal"
	case RuleBayes:
		return "bayes"
	case RuleSURE:
		return "sure"
	case RuleHybridSURE:
		return "hybrid_sure"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// ParseRule accepts the names produced by Rule.String plus a few aliases.
func ParseRule(name string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "off":
		return RuleNone, nil
	case "universal", "visu", "visushrink", "mad":
		return RuleUniversal, nil
	case "bayes", "bayesshrink":
		return RuleBayes, nil
	case "sure", "rigrsure":
		return RuleSURE, nil
	case "hybrid_sure", "heursure", "sureshrink":
		return RuleHybridSURE, nil
	default:
		return RuleNone, fmt.Errorf("unknown threshold rule %q", name)
	}
}

// Threshold dispatches rule over one detail level.
func Threshold(rule Rule, detail []float64) float64 {
	switch rule {
	case RuleUniversal:
		return UniversalThreshold(detail)
	case RuleBayes:
		return BayesShrinkThreshold(detail)
	case RuleSURE:
		return SUREThreshold(detail)
	case RuleHybridSURE:
		return HybridSUREThreshold(detail)
	default:
		return 0
	}
}

// Mode is hard or soft shrinkage.
type Mode int

const (
	Hard Mode = iota
	Soft
)

func (m Mode) String() string {
	if m == Soft {
		return "soft"
	}
	return "hard"
}

func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hard":
		return Hard, nil
	case "soft", "":
		return Soft, nil
	default:
		return Hard, fmt.Errorf("unknown shrinkage mode %q", name)
	}
}

// Apply shrinks coeffs in place. Hard zeroes |c| <= t; soft maps c to
// sign(c)·max(|c|−t, 0).
func Apply(coeffs []float64, t float64, mode Mode) {
	for i, c := range coeffs {
		a := math.Abs(c)
		if a <= t {
			coeffs[i] = 0
			continue
		}
		if mode == Soft {
			coeffs[i] = math.Copysign(a-t, c)
		}
	}
}

// Spec is one level's threshold decision, consumed once by the result.
type Spec struct {
	Level int
	Value float64
	Mode  Mode
}

// Plan computes a Spec for each requested 1-based level. details[0] is
// level 1; levels outside the available range are skipped.
func Plan(rule Rule, mode Mode, details [][]float64, levels []int) []Spec {
	if rule == RuleNone {
		return nil
	}
	specs := make([]Spec, 0, len(levels))
	for _, lvl := range levels {
		if lvl < 1 || lvl > len(details) {
			continue
		}
		specs = append(specs, Spec{
			Level: lvl,
			Value: Threshold(rule, details[lvl-1]),
			Mode:  mode,
		})
	}
	return specs
}

package evaluation

import (
	"strings"

	"github.com/hupe1980/goalflow/core"
)

// Categorizer maps a failure message to a root-cause category and the
// iteration guidance that follows from it. Matching is ordered: logic
// patterns win over implementation patterns, which win over edge-case
// patterns, so a message matching several buckets lands in the most
// actionable one. Unrecognized failures default to an implementation error,
// the safest assumption because it never forces a goal restart.
type Categorizer struct {
	logicPatterns          []string
	implementationPatterns []string
	edgeCasePatterns       []string
}

// NewCategorizer creates a categorizer with the built-in pattern tables.
func NewCategorizer() *Categorizer {
	return &Categorizer{
		logicPatterns: []string{
			"constraint violated",
			"constraint violation",
			"criteria mismatch",
			"criterion not met",
			"goal mismatch",
			"contradicts goal",
			"invariant broken",
		},
		implementationPatterns: []string{
			"nonetype",
			"has no attribute",
			"nil pointer",
			"nil map",
			"index out of range",
			"assertion",
			"type error",
			"typeerror",
			"keyerror",
			"undefined",
			"tool call failed",
			"no function registered",
			"panic",
			"syntax error",
		},
		edgeCasePatterns: []string{
			"boundary",
			"timeout",
			"timed out",
			"rate limit",
			"empty result",
			"empty input",
			"unexpected format",
			"overflow",
			"too large",
			"unicode",
		},
	}
}

// Categorize classifies one failure message.
func (c *Categorizer) Categorize(message string) core.ErrorCategory {
	lower := strings.ToLower(message)
	if matchesAny(lower, c.logicPatterns) {
		return core.CategoryLogicError
	}
	if matchesAny(lower, c.implementationPatterns) {
		return core.CategoryImplementationError
	}
	if matchesAny(lower, c.edgeCasePatterns) {
		return core.CategoryEdgeCase
	}
	return core.CategoryImplementationError
}

// Guidance returns the iteration guidance for a category. Only logic errors
// require restarting from the goal; implementation errors are fixed in the
// build stage and edge cases feed back into evaluation.
func (c *Categorizer) Guidance(category core.ErrorCategory) core.Guidance {
	switch category {
	case core.CategoryLogicError:
		return core.Guidance{
			Category:        core.CategoryLogicError,
			TargetStage:     "goal",
			RestartRequired: true,
			Action:          "Revisit the goal's constraints and success criteria; they conflict with observed behavior.",
		}
	case core.CategoryEdgeCase:
		return core.Guidance{
			Category:        core.CategoryEdgeCase,
			TargetStage:     "evaluation",
			RestartRequired: false,
			Action:          "Add handling for the boundary condition and regenerate the edge case test.",
		}
	default:
		return core.Guidance{
			Category:        core.CategoryImplementationError,
			TargetStage:     "build",
			RestartRequired: false,
			Action:          "Fix the graph's nodes or wiring; the goal itself is sound.",
		}
	}
}

func matchesAny(message string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(message, p) {
			return true
		}
	}
	return false
}

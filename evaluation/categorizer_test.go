package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/goalflow/core"
)

func TestCategorize(t *testing.T) {
	c := NewCategorizer()

	tests := []struct {
		name    string
		message string
		want    core.ErrorCategory
	}{
		{
			name:    "constraint violation is a logic error",
			message: "constraint violated: core refund cap exceeded",
			want:    core.CategoryLogicError,
		},
		{
			name:    "criteria mismatch is a logic error",
			message: "criteria mismatch between resolution_rate and observed output",
			want:    core.CategoryLogicError,
		},
		{
			name:    "missing attribute is an implementation error",
			message: "'NoneType' object has no attribute 'get'",
			want:    core.CategoryImplementationError,
		},
		{
			name:    "nil pointer is an implementation error",
			message: "runtime error: nil pointer dereference in node lookup",
			want:    core.CategoryImplementationError,
		},
		{
			name:    "rate limit is an edge case",
			message: "upstream API returned 429: rate limit exceeded",
			want:    core.CategoryEdgeCase,
		},
		{
			name:    "empty result is an edge case",
			message: "search produced an empty result set",
			want:    core.CategoryEdgeCase,
		},
		{
			name:    "unknown failure defaults to implementation error",
			message: "something inexplicable happened",
			want:    core.CategoryImplementationError,
		},
		{
			name:    "logic patterns win over edge case patterns",
			message: "constraint violated after hitting the rate limit",
			want:    core.CategoryLogicError,
		},
		{
			name:    "implementation patterns win over edge case patterns",
			message: "assertion failed on empty result",
			want:    core.CategoryImplementationError,
		},
		{
			name:    "matching is case insensitive",
			message: "CONSTRAINT VIOLATED: do not exceed budget",
			want:    core.CategoryLogicError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Categorize(tt.message))
		})
	}
}

func TestGuidance(t *testing.T) {
	c := NewCategorizer()

	logic := c.Guidance(core.CategoryLogicError)
	assert.Equal(t, "goal", logic.TargetStage)
	assert.True(t, logic.RestartRequired)

	impl := c.Guidance(core.CategoryImplementationError)
	assert.Equal(t, "build", impl.TargetStage)
	assert.False(t, impl.RestartRequired)

	edge := c.Guidance(core.CategoryEdgeCase)
	assert.Equal(t, "evaluation", edge.TargetStage)
	assert.False(t, edge.RestartRequired)

	// Unknown categories get the safe default.
	unknown := c.Guidance(core.ErrorCategory("COSMIC_RAY"))
	assert.Equal(t, core.CategoryImplementationError, unknown.Category)
}

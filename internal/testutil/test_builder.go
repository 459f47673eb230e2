package testutil

import (
	"time"

	"github.com/hupe1980/goalflow/core"
)

// TestBuilder helps construct evaluation tests with fluent chaining.
// Example:
//
//	tc := NewTestBuilder("t-1").Goal("goal-1").Approved().
//		Input("ticket", "refund request").
//		Expect("category", "billing").
//		Build()
type TestBuilder struct {
	test core.Test
}

// NewTestBuilder creates a builder for a pending constraint test with the
// given id. Use chainable methods then call Build.
func NewTestBuilder(id string) *TestBuilder {
	now := time.Now().UTC()
	return &TestBuilder{test: core.Test{
		ID:       id,
		Type:     core.TestConstraint,
		Status:   core.TestPending,
		Name:     id,
		Input:    map[string]any{},
		Expected: map[string]any{},
		Created:  now,
		Updated:  now,
	}}
}

// Goal sets the owning goal id (chainable).
func (b *TestBuilder) Goal(goalID string) *TestBuilder {
	b.test.GoalID = goalID
	return b
}

// Type sets the test type (chainable).
func (b *TestBuilder) Type(tt core.TestType) *TestBuilder {
	b.test.Type = tt
	return b
}

// Status sets the lifecycle status (chainable).
func (b *TestBuilder) Status(st core.TestStatus) *TestBuilder {
	b.test.Status = st
	return b
}

// Approved marks the test approved (chainable).
func (b *TestBuilder) Approved() *TestBuilder {
	return b.Status(core.TestApproved)
}

// Name sets the human readable name (chainable).
func (b *TestBuilder) Name(name string) *TestBuilder {
	b.test.Name = name
	return b
}

// Parent links the test to the criterion or constraint it verifies (chainable).
func (b *TestBuilder) Parent(criteriaID string) *TestBuilder {
	b.test.ParentCriteriaID = criteriaID
	return b
}

// Input sets one input context key (chainable).
func (b *TestBuilder) Input(key string, val any) *TestBuilder {
	b.test.Input[key] = val
	return b
}

// Expect sets one expected output key (chainable).
func (b *TestBuilder) Expect(key string, val any) *TestBuilder {
	b.test.Expected[key] = val
	return b
}

// Build returns the assembled *core.Test.
func (b *TestBuilder) Build() *core.Test {
	return b.test.Clone()
}

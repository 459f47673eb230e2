package core

// Goal describes the intended outcome an agent graph is built and evaluated
// against. Goals are authored once per agent version and are immutable
// thereafter; a new version supersedes rather than mutates.
type Goal struct {
	ID              string             `yaml:"id" json:"id"`
	Name            string             `yaml:"name" json:"name"`
	Description     string             `yaml:"description" json:"description"`
	SuccessCriteria []SuccessCriterion `yaml:"success_criteria,omitempty" json:"success_criteria,omitempty"`
	Constraints     []Constraint       `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// Criterion returns the success criterion with the given id, if present.
func (g *Goal) Criterion(id string) (SuccessCriterion, bool) {
	for _, c := range g.SuccessCriteria {
		if c.ID == id {
			return c, true
		}
	}
	return SuccessCriterion{}, false
}

// Constraint returns the constraint with the given id, if present.
func (g *Goal) Constraint(id string) (Constraint, bool) {
	for _, c := range g.Constraints {
		if c.ID == id {
			return c, true
		}
	}
	return Constraint{}, false
}

// SuccessCriterion is a measurable target attached to a goal. Weights are
// relative and need not sum to 1 across a goal's criteria.
type SuccessCriterion struct {
	ID          string  `yaml:"id" json:"id"`
	Description string  `yaml:"description" json:"description"`
	Metric      string  `yaml:"metric" json:"metric"`
	Target      Target  `yaml:"target" json:"target"`
	Weight      float64 `yaml:"weight" json:"weight"`
}

// Target is the desired value for a criterion's metric, either a scalar
// (Value) or an inclusive range (Min/Max). A scalar target takes precedence
// when both are set.
type Target struct {
	Value *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Min   *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Contains reports whether x satisfies the target.
func (t Target) Contains(x float64) bool {
	if t.Value != nil {
		return x == *t.Value
	}
	if t.Min != nil && x < *t.Min {
		return false
	}
	if t.Max != nil && x > *t.Max {
		return false
	}
	return t.Min != nil || t.Max != nil
}

// ConstraintType distinguishes inviolable boundaries from advisory ones.
type ConstraintType string

const (
	// ConstraintHard marks a constraint whose violation fails the whole run.
	ConstraintHard ConstraintType = "hard"
	// ConstraintSoft marks a constraint whose violation only warns.
	ConstraintSoft ConstraintType = "soft"
)

// Constraint is a boundary condition attached to a goal.
type Constraint struct {
	ID          string         `yaml:"id" json:"id"`
	Description string         `yaml:"description" json:"description"`
	Type        ConstraintType `yaml:"constraint_type" json:"constraint_type"`
	Category    string         `yaml:"category,omitempty" json:"category,omitempty"`
}

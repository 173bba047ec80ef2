// Package registration owns the per-user workflow position (Progress) and the
// completion flag (Status). Only Machine writes either of them.
package registration

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// ══════════════════════════════════════════════════════════════════════════════

// Step is a workflow position, 1 through 8.
type Step int

const (
	StepAccount Step = iota + 1
	StepPersonalInfo
	StepAddress
	StepEducation
	StepCourseSelection
	StepReview
	StepPayment
	StepConfirmation
)

// TotalSteps is the number of workflow steps. StepConfirmation is terminal.
const TotalSteps = 8

var stepNames = map[Step]string{
	StepAccount:         "account",
	StepPersonalInfo:    "personal_info",
	StepAddress:         "address",
	StepEducation:       "education",
	StepCourseSelection: "course_selection",
	StepReview:          "review",
	StepPayment:         "payment",
	StepConfirmation:    "confirmation",
}

// IsValid reports whether s is within 1..TotalSteps.
func (s Step) IsValid() bool {
	return s >= StepAccount && s <= StepConfirmation
}

// Name returns the URL name of the step.
func (s Step) Name() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step_%d", int(s))
}

// String implements fmt.Stringer.
func (s Step) String() string {
	return s.Name()
}

// IsTerminal reports whether s is the finalized position.
func (s Step) IsTerminal() bool {
	return s == StepConfirmation
}

// Percentage returns round(s/8*100, 2).
func (s Step) Percentage() float64 {
	return math.Round(float64(s)/TotalSteps*100*100) / 100
}

// ParseStepName resolves a step from its name (case-insensitive, "-" allowed
// in place of "_") or from its number.
func ParseStepName(name string) (Step, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for step, n := range stepNames {
		if n == normalized {
			return step, nil
		}
	}

	if n, err := strconv.Atoi(normalized); err == nil {
		step := Step(n)
		if !step.IsValid() {
			return 0, shared.ErrInvalidStep
		}
		return step, nil
	}

	return 0, shared.ErrUnknownStepName
}

// Steps returns all steps in order.
func Steps() []Step {
	out := make([]Step, 0, TotalSteps)
	for s := StepAccount; s <= StepConfirmation; s++ {
		out = append(out, s)
	}
	return out
}

package registration

// predecessors maps each submittable step to the step the user must already
// have reached. It is consulted only when strict ordering is enabled.
var predecessors = map[Step]Step{
	StepPersonalInfo:    StepAccount,
	StepAddress:         StepPersonalInfo,
	StepEducation:       StepAddress,
	StepCourseSelection: StepEducation,
	StepReview:          StepCourseSelection,
	StepPayment:         StepReview,
	StepConfirmation:    StepPayment,
}

// RequiredPredecessor returns the step that must be reached before target.
// ok is false for StepAccount, which has none.
func RequiredPredecessor(target Step) (Step, bool) {
	prev, ok := predecessors[target]
	return prev, ok
}

// CanEnter reports whether a user at current may submit target under strict
// ordering. Resubmitting an already reached step is always allowed.
func CanEnter(current, target Step) bool {
	if current >= target {
		return true
	}
	prev, ok := RequiredPredecessor(target)
	if !ok {
		return true
	}
	return current >= prev
}

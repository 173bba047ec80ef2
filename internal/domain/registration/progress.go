package registration

import (
	"time"

	"github.com/google/uuid"
)

// CompletionNotes is written to both records by a successful Finalize.
const CompletionNotes = "Registration successfully completed."

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the user's position in the workflow. CurrentStep is the source
// of truth for where the user is.
type Progress struct {
	UserID uuid.UUID

	// CurrentStep - last step the user reached.
	CurrentStep Step

	// LastVisited - updated by every write.
	LastVisited time.Time

	// ProgressNotes - free text, written by step handlers and admins.
	ProgressNotes string
}

// NewProgress returns a progress record at step 1.
func NewProgress(userID uuid.UUID, now time.Time) *Progress {
	return &Progress{
		UserID:      userID,
		CurrentStep: StepAccount,
		LastVisited: now,
	}
}

// Percentage returns the completion percentage of the current step.
func (p *Progress) Percentage() float64 {
	return p.CurrentStep.Percentage()
}

// IsStepReached reports whether the user has reached n.
func (p *Progress) IsStepReached(n Step) bool {
	return p.CurrentStep >= n
}

func (p *Progress) moveTo(step Step, notes *string, now time.Time) {
	p.CurrentStep = step
	p.LastVisited = now
	if notes != nil {
		p.ProgressNotes = *notes
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the completion flag. CompletionDate is non-nil exactly when
// IsCompleted is true and never changes once set.
type Status struct {
	UserID         uuid.UUID
	IsCompleted    bool
	CompletionDate *time.Time
	ProgressNotes  string
	LastUpdated    time.Time
}

// NewStatus returns a not-completed status.
func NewStatus(userID uuid.UUID, now time.Time) *Status {
	return &Status{UserID: userID, LastUpdated: now}
}

// complete marks the registration finished. It returns true on the first
// transition only.
func (s *Status) complete(now time.Time, notes string) bool {
	first := !s.IsCompleted
	s.IsCompleted = true
	if s.CompletionDate == nil {
		at := now
		s.CompletionDate = &at
	}
	s.ProgressNotes = notes
	s.LastUpdated = now
	return first
}

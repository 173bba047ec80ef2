package course

import (
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// PaymentStatus of a selection.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
)

// Selection is the user's chosen courses. Price fields are derived from the
// courses at save time and never set independently.
type Selection struct {
	UserID        uuid.UUID
	CourseIDs     []uuid.UUID
	StudyDuration int
	Price         PriceBreakdown
	PaymentStatus PaymentStatus
	UpdatedAt     time.Time
}

// TotalFee is the amount due.
func (s *Selection) TotalFee() shared.Money {
	return s.Price.Total
}

// IsPaid reports whether the selection was paid.
func (s *Selection) IsPaid() bool {
	return s.PaymentStatus == PaymentCompleted
}

// NewSelection prices courses for userID. It starts Pending; a resubmitted
// selection keeps the stored status when upserted.
func NewSelection(userID uuid.UUID, courses []Course, studyDuration int, now time.Time) *Selection {
	ids := make([]uuid.UUID, 0, len(courses))
	for i := range courses {
		ids = append(ids, courses[i].ID)
	}
	return &Selection{
		UserID:        userID,
		CourseIDs:     ids,
		StudyDuration: studyDuration,
		Price:         Price(courses),
		PaymentStatus: PaymentPending,
		UpdatedAt:     now,
	}
}

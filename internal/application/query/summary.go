package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/lookup"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW SUMMARY
// Everything the user submitted so far, shown at the review step. Sections
// that were never submitted are nil.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryDTO is the review view.
type SummaryDTO struct {
	User      UserDTO           `json:"user"`
	Progress  *ProgressDTO      `json:"progress"`
	Personal  *PersonalInfoDTO  `json:"personal_info"`
	Address   *AddressDTO       `json:"address"`
	Education *EducationDTO     `json:"education"`
	Selection *SelectionDTO     `json:"course_selection"`
	Payment   *PaymentDTO       `json:"latest_payment"`
}

// PersonalInfoDTO is the step-2 view.
type PersonalInfoDTO struct {
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phone_number"`
	Nationality string `json:"nationality"`
}

// AddressDTO is the step-3 view.
type AddressDTO struct {
	StreetAddress  string `json:"street_address"`
	ApartmentSuite string `json:"apartment_suite,omitempty"`
	City           string `json:"city"`
	Country        string `json:"country"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postal_code"`
	PhoneNumber    string `json:"phone_number"`
}

// EducationDTO is the step-4 view.
type EducationDTO struct {
	Degree         string `json:"degree"`
	Institution    string `json:"institution"`
	FieldOfStudy   string `json:"field_of_study,omitempty"`
	GraduationYear int    `json:"graduation_year"`
	Honors         string `json:"honors,omitempty"`
}

// SelectionDTO is the step-5 view with amounts in major units.
type SelectionDTO struct {
	Courses            []CourseDTO `json:"courses"`
	StudyDuration      int         `json:"study_duration"`
	Subtotal           float64     `json:"subtotal"`
	DiscountPercentage int         `json:"discount_percentage"`
	Discount           float64     `json:"discount"`
	TotalFee           float64     `json:"total_fee"`
	PaymentStatus      string      `json:"payment_status"`
}

// PaymentDTO is one payment attempt.
type PaymentDTO struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Method        string    `json:"method"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	PaymentDate   time.Time `json:"payment_date"`
}

// NewPaymentDTO maps a payment.
func NewPaymentDTO(p *payment.Payment) *PaymentDTO {
	return &PaymentDTO{
		ID:            p.ID,
		UserID:        p.UserID,
		Method:        string(p.Method),
		Amount:        p.Amount.Float(),
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		PaymentDate:   p.PaymentDate,
	}
}

// SummaryReader is the read side needed by the summary.
type SummaryReader struct {
	Accounts     account.Repository
	Registration registration.Repository
	Profiles     profile.Repository
	Courses      course.Repository
	Selections   course.SelectionRepository
	Payments     payment.Repository
	Geo          geo.Repository
}

// SummaryQuery builds the review summary.
type SummaryQuery struct {
	r     SummaryReader
	users *lookup.UserResolver
}

// NewSummaryQuery creates a SummaryQuery.
func NewSummaryQuery(r SummaryReader) *SummaryQuery {
	return &SummaryQuery{r: r, users: lookup.NewUserResolver(r.Accounts)}
}

// Handle returns the summary for userRef.
func (q *SummaryQuery) Handle(ctx context.Context, userRef string) (*SummaryDTO, error) {
	user, err := q.users.Resolve(ctx, userRef)
	if err != nil {
		return nil, fmt.Errorf("review_summary: %w", err)
	}

	out := &SummaryDTO{User: NewUserDTO(user)}

	if p, err := q.r.Registration.GetProgress(ctx, user.ID); err == nil {
		out.Progress = NewProgressDTO(p)
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("review_summary: progress: %w", err)
	}

	if out.Personal, err = q.personal(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("review_summary: personal info: %w", err)
	}
	if out.Address, err = q.address(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("review_summary: address: %w", err)
	}
	if edu, err := q.r.Profiles.GetEducation(ctx, user.ID); err == nil {
		out.Education = &EducationDTO{
			Degree:         string(edu.Degree),
			Institution:    edu.Institution,
			FieldOfStudy:   edu.FieldOfStudy,
			GraduationYear: edu.GraduationYear,
			Honors:         edu.Honors,
		}
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("review_summary: education: %w", err)
	}
	if out.Selection, err = q.selection(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("review_summary: selection: %w", err)
	}
	if p, err := q.r.Payments.Latest(ctx, user.ID); err == nil {
		out.Payment = NewPaymentDTO(p)
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("review_summary: payment: %w", err)
	}

	return out, nil
}

func (q *SummaryQuery) personal(ctx context.Context, userID uuid.UUID) (*PersonalInfoDTO, error) {
	info, err := q.r.Profiles.GetPersonalInfo(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dto := &PersonalInfoDTO{
		DateOfBirth: timeutil.FormatDateStr(info.DateOfBirth),
		Gender:      string(info.Gender),
		PhoneNumber: info.PhoneNumber,
	}
	if c, err := q.r.Geo.GetCountryByID(ctx, info.NationalityID); err == nil {
		dto.Nationality = c.Name
	}
	return dto, nil
}

func (q *SummaryQuery) address(ctx context.Context, userID uuid.UUID) (*AddressDTO, error) {
	addr, err := q.r.Profiles.GetAddress(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dto := &AddressDTO{
		StreetAddress:  addr.StreetAddress,
		ApartmentSuite: addr.ApartmentSuite,
		State:          addr.State,
		PostalCode:     addr.PostalCode,
		PhoneNumber:    addr.PhoneNumber,
	}
	if c, err := q.r.Geo.GetCountryByID(ctx, addr.CountryID); err == nil {
		dto.Country = c.Name
		if cities, err := q.r.Geo.ListCities(ctx, c.ID); err == nil {
			for _, city := range cities {
				if city.ID == addr.CityID {
					dto.City = city.Name
					break
				}
			}
		}
	}
	return dto, nil
}

func (q *SummaryQuery) selection(ctx context.Context, userID uuid.UUID) (*SelectionDTO, error) {
	sel, err := q.r.Selections.GetByUserID(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	courses, err := q.r.Courses.GetByIDs(ctx, sel.CourseIDs)
	if err != nil {
		return nil, err
	}
	dtos := make([]CourseDTO, 0, len(courses))
	for i := range courses {
		dtos = append(dtos, NewCourseDTO(&courses[i]))
	}

	return &SelectionDTO{
		Courses:            dtos,
		StudyDuration:      sel.StudyDuration,
		Subtotal:           sel.Price.Subtotal.Float(),
		DiscountPercentage: sel.Price.DiscountPercentage,
		Discount:           sel.Price.Discount.Float(),
		TotalFee:           sel.TotalFee().Float(),
		PaymentStatus:      string(sel.PaymentStatus),
	}, nil
}

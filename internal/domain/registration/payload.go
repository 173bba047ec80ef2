package registration

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEP PAYLOADS
// One request type per submittable step. Tags are read by the step validator.
// ══════════════════════════════════════════════════════════════════════════════

// StepPayload is the tagged union of step submissions.
type StepPayload interface {
	// Step is the workflow step this payload submits.
	Step() Step

	// UserReference is the email or UUID identifying the submitter.
	UserReference() string
}

// AccountPayload creates the user (step 1).
type AccountPayload struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,password_strength"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
}

func (AccountPayload) Step() Step              { return StepAccount }
func (p AccountPayload) UserReference() string { return p.Email }

// PersonalInfoPayload is step 2. Nationality is a country name or ISO code.
type PersonalInfoPayload struct {
	User        string `json:"user" validate:"required,user_ref"`
	DateOfBirth string `json:"date_of_birth" validate:"required,adult_dob"`
	Gender      string `json:"gender" validate:"required,oneof=Male Female Other"`
	PhoneNumber string `json:"phone_number" validate:"required,intl_phone"`
	Nationality string `json:"nationality" validate:"required,max=100"`
}

func (PersonalInfoPayload) Step() Step              { return StepPersonalInfo }
func (p PersonalInfoPayload) UserReference() string { return p.User }

// AddressPayload is step 3. An unknown City is created under CountryCode.
type AddressPayload struct {
	User           string `json:"user" validate:"required,user_ref"`
	StreetAddress  string `json:"street_address" validate:"required,max=255"`
	ApartmentSuite string `json:"apartment_suite" validate:"max=50"`
	CountryCode    string `json:"country" validate:"required,iso3166_1_alpha2"`
	City           string `json:"city" validate:"required,max=100"`
	State          string `json:"state" validate:"max=100"`
	PostalCode     string `json:"postal_code" validate:"required,postal_code"`
	PhoneNumber    string `json:"phone_number" validate:"required,intl_phone"`
}

func (AddressPayload) Step() Step              { return StepAddress }
func (p AddressPayload) UserReference() string { return p.User }

// EducationPayload is step 4.
type EducationPayload struct {
	User           string `json:"user" validate:"required,user_ref"`
	Degree         string `json:"degree" validate:"required,degree"`
	Institution    string `json:"institution" validate:"required,max=255"`
	FieldOfStudy   string `json:"field_of_study" validate:"max=255"`
	GraduationYear int    `json:"graduation_year" validate:"required,graduation_year"`
	Honors         string `json:"honors" validate:"max=255"`
}

func (EducationPayload) Step() Step              { return StepEducation }
func (p EducationPayload) UserReference() string { return p.User }

// CourseSelectionPayload is step 5. StudyDuration is in months.
type CourseSelectionPayload struct {
	User          string      `json:"user" validate:"required,user_ref"`
	CourseIDs     []uuid.UUID `json:"courses" validate:"required,min=1,unique"`
	StudyDuration int         `json:"study_duration" validate:"gte=0,lte=120"`
}

func (CourseSelectionPayload) Step() Step              { return StepCourseSelection }
func (p CourseSelectionPayload) UserReference() string { return p.User }

// ReviewPayload acknowledges the review summary (step 6).
type ReviewPayload struct {
	User string `json:"user" validate:"required,user_ref"`
}

func (ReviewPayload) Step() Step              { return StepReview }
func (p ReviewPayload) UserReference() string { return p.User }

// PaymentPayload is step 7. Amount is in major units; Token is the gateway
// payment method reference (Stripe PaymentMethod id, PayPal order id, Google
// Pay token).
type PaymentPayload struct {
	User   string  `json:"user" validate:"required,user_ref"`
	Method string  `json:"method" validate:"required,oneof=stripe paypal googlepay"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Token  string  `json:"token" validate:"required,max=255"`
}

func (PaymentPayload) Step() Step              { return StepPayment }
func (p PaymentPayload) UserReference() string { return p.User }

// ConfirmationPayload requests Finalize (step 8).
type ConfirmationPayload struct {
	User string `json:"user" validate:"required,user_ref"`
}

func (ConfirmationPayload) Step() Step              { return StepConfirmation }
func (p ConfirmationPayload) UserReference() string { return p.User }

// DecodePayload decodes body into the payload type for step. Unknown JSON
// fields are rejected.
func DecodePayload(step Step, body []byte) (StepPayload, error) {
	var target StepPayload
	switch step {
	case StepAccount:
		target = &AccountPayload{}
	case StepPersonalInfo:
		target = &PersonalInfoPayload{}
	case StepAddress:
		target = &AddressPayload{}
	case StepEducation:
		target = &EducationPayload{}
	case StepCourseSelection:
		target = &CourseSelectionPayload{}
	case StepReview:
		target = &ReviewPayload{}
	case StepPayment:
		target = &PaymentPayload{}
	case StepConfirmation:
		target = &ConfirmationPayload{}
	default:
		return nil, shared.ErrInvalidStep
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, shared.FieldError("body", fmt.Sprintf("malformed %s payload: %v", step.Name(), err))
	}
	return deref(target), nil
}

func deref(p StepPayload) StepPayload {
	switch v := p.(type) {
	case *AccountPayload:
		return *v
	case *PersonalInfoPayload:
		return *v
	case *AddressPayload:
		return *v
	case *EducationPayload:
		return *v
	case *CourseSelectionPayload:
		return *v
	case *ReviewPayload:
		return *v
	case *PaymentPayload:
		return *v
	case *ConfirmationPayload:
		return *v
	}
	return p
}

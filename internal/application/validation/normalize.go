package validation

import (
	"strings"

	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// Normalize trims string fields and lower-cases emails and email user
// references. Passwords are left untouched.
func Normalize(p registration.StepPayload) registration.StepPayload {
	switch v := p.(type) {
	case registration.AccountPayload:
		v.Email = shared.NormalizeEmail(v.Email).String()
		v.FirstName = strings.TrimSpace(v.FirstName)
		v.LastName = strings.TrimSpace(v.LastName)
		return v
	case registration.PersonalInfoPayload:
		v.User = normalizeRef(v.User)
		v.DateOfBirth = strings.TrimSpace(v.DateOfBirth)
		v.Gender = strings.TrimSpace(v.Gender)
		v.PhoneNumber = strings.TrimSpace(v.PhoneNumber)
		v.Nationality = strings.TrimSpace(v.Nationality)
		return v
	case registration.AddressPayload:
		v.User = normalizeRef(v.User)
		v.StreetAddress = strings.TrimSpace(v.StreetAddress)
		v.ApartmentSuite = strings.TrimSpace(v.ApartmentSuite)
		v.CountryCode = strings.ToUpper(strings.TrimSpace(v.CountryCode))
		v.City = strings.TrimSpace(v.City)
		v.State = strings.TrimSpace(v.State)
		v.PostalCode = strings.TrimSpace(v.PostalCode)
		v.PhoneNumber = strings.TrimSpace(v.PhoneNumber)
		return v
	case registration.EducationPayload:
		v.User = normalizeRef(v.User)
		v.Degree = strings.TrimSpace(v.Degree)
		v.Institution = strings.TrimSpace(v.Institution)
		v.FieldOfStudy = strings.TrimSpace(v.FieldOfStudy)
		v.Honors = strings.TrimSpace(v.Honors)
		return v
	case registration.CourseSelectionPayload:
		v.User = normalizeRef(v.User)
		return v
	case registration.ReviewPayload:
		v.User = normalizeRef(v.User)
		return v
	case registration.PaymentPayload:
		v.User = normalizeRef(v.User)
		v.Method = strings.ToLower(strings.TrimSpace(v.Method))
		v.Token = strings.TrimSpace(v.Token)
		return v
	case registration.ConfirmationPayload:
		v.User = normalizeRef(v.User)
		return v
	}
	return p
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if shared.LooksLikeEmail(ref) {
		return shared.NormalizeEmail(ref).String()
	}
	return strings.ToLower(ref)
}

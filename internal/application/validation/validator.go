// Package validation checks step payloads before they reach the registration
// machine. It never panics; failures come back as *shared.ValidationError
// keyed by the payload's JSON field names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// Business rule limits.
const (
	MinimumAge          = 18
	MinPasswordLength   = 8
	MinPostalCodeLength = 4
	MaxPostalCodeLength = 10
	MinGraduationYear   = 1900
)

var (
	phonePattern      = regexp.MustCompile(`^\+\d+$`)
	postalCodePattern = regexp.MustCompile(`^\d+$`)
	upperPattern      = regexp.MustCompile(`[A-Z]`)
	lowerPattern      = regexp.MustCompile(`[a-z]`)
	digitPattern      = regexp.MustCompile(`\d`)
	symbolPattern     = regexp.MustCompile(`[@$!%*?&]`)
)

// Validator wraps go-playground/validator with the registration rules.
type Validator struct {
	validate *validator.Validate
	clock    timeutil.Clock
}

// New creates a Validator. clock decides "today" for age and graduation year
// checks; nil means the system clock.
func New(clock timeutil.Clock) *Validator {
	if clock == nil {
		clock = timeutil.SystemClock
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	out := &Validator{validate: v, clock: clock}

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("password_strength", validatePasswordStrength)
	_ = v.RegisterValidation("intl_phone", validatePhone)
	_ = v.RegisterValidation("postal_code", validatePostalCode)
	_ = v.RegisterValidation("degree", validateDegree)
	_ = v.RegisterValidation("user_ref", validateUserRef)
	_ = v.RegisterValidation("adult_dob", out.validateAdultDOB)
	_ = v.RegisterValidation("graduation_year", out.validateGraduationYear)

	return out
}

// Struct validates any tagged struct.
func (v *Validator) Struct(s any) error {
	return translate(v.validate.Struct(s))
}

// Payload normalizes p (trims strings, lower-cases emails) and validates it.
func (v *Validator) Payload(p registration.StepPayload) (registration.StepPayload, error) {
	normalized := Normalize(p)
	if err := v.Struct(normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Rules, also usable on their own
// ──────────────────────────────────────────────────────────────────────────────

// PasswordStrong reports whether password has at least 8 characters and one
// each of upper case, lower case, digit and @$!%*?&.
func PasswordStrong(password string) bool {
	return len(password) >= MinPasswordLength &&
		upperPattern.MatchString(password) &&
		lowerPattern.MatchString(password) &&
		digitPattern.MatchString(password) &&
		symbolPattern.MatchString(password)
}

// PhoneValid reports whether phone is "+" followed by digits only.
func PhoneValid(phone string) bool {
	return phonePattern.MatchString(phone)
}

// PostalCodeValid reports whether code is 4 to 10 digits.
func PostalCodeValid(code string) bool {
	return len(code) >= MinPostalCodeLength &&
		len(code) <= MaxPostalCodeLength &&
		postalCodePattern.MatchString(code)
}

// IsAdult parses dob as YYYY-MM-DD and checks floor(days/365) >= 18 at today.
func IsAdult(dob string, today timeutil.Clock) (bool, error) {
	born, err := timeutil.ParseDate(dob)
	if err != nil {
		return false, err
	}
	return timeutil.ApproxYears(born, today()) >= MinimumAge, nil
}

// GraduationYearValid reports whether year is in [1900, current year].
func GraduationYearValid(year int, today timeutil.Clock) bool {
	return year >= MinGraduationYear && year <= timeutil.CurrentYear(today)
}

func validatePasswordStrength(fl validator.FieldLevel) bool {
	return PasswordStrong(fl.Field().String())
}

func validatePhone(fl validator.FieldLevel) bool {
	return PhoneValid(fl.Field().String())
}

func validatePostalCode(fl validator.FieldLevel) bool {
	return PostalCodeValid(fl.Field().String())
}

func validateDegree(fl validator.FieldLevel) bool {
	return profile.Degree(fl.Field().String()).IsValid()
}

func validateUserRef(fl validator.FieldLevel) bool {
	ref := fl.Field().String()
	if shared.LooksLikeEmail(ref) {
		return true
	}
	_, err := uuid.Parse(ref)
	return err == nil
}

func (v *Validator) validateAdultDOB(fl validator.FieldLevel) bool {
	ok, err := IsAdult(fl.Field().String(), v.clock)
	return err == nil && ok
}

func (v *Validator) validateGraduationYear(fl validator.FieldLevel) bool {
	return GraduationYearValid(int(fl.Field().Int()), v.clock)
}

// ──────────────────────────────────────────────────────────────────────────────
// Error translation
// ──────────────────────────────────────────────────────────────────────────────

func translate(err error) error {
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return shared.FieldError("body", "payload could not be validated")
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.FieldError("body", err.Error())
	}

	out := shared.NewValidationError()
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), message(fe))
	}
	return out.OrNil()
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "invalid email format"
	case "password_strength":
		return "password must be at least 8 characters long and contain an uppercase letter, a lowercase letter, a number and one of @$!%*?&"
	case "intl_phone":
		return "phone number must start with '+' and include only digits after"
	case "postal_code":
		return "postal code must be 4 to 10 digits"
	case "adult_dob":
		return "date of birth must be YYYY-MM-DD and the user must be at least 18 years old"
	case "graduation_year":
		return "graduation year must be between 1900 and the current year"
	case "degree":
		return "degree must be one of High School, Bachelor's, Master's, Ph.D., Other"
	case "user_ref":
		return "user must be an email address or a user id"
	case "iso3166_1_alpha2":
		return "country must be an ISO 3166-1 alpha-2 code"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

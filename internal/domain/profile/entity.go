// Package profile holds the one-per-user step records: personal information,
// address and education. Each is replaced wholesale on resubmission.
package profile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Gender as collected by the personal information step.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// IsValid reports whether g is a known gender value.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Degree is the highest completed education level.
type Degree string

const (
	DegreeHighSchool Degree = "High School"
	DegreeBachelor   Degree = "Bachelor's"
	DegreeMaster     Degree = "Master's"
	DegreePhD        Degree = "Ph.D."
	DegreeOther      Degree = "Other"
)

// Degrees lists accepted degree values in display order.
func Degrees() []Degree {
	return []Degree{DegreeHighSchool, DegreeBachelor, DegreeMaster, DegreePhD, DegreeOther}
}

// IsValid reports whether d is a known degree value.
func (d Degree) IsValid() bool {
	for _, known := range Degrees() {
		if d == known {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// PersonalInfo is the step-2 record.
type PersonalInfo struct {
	UserID        uuid.UUID
	DateOfBirth   time.Time
	Gender        Gender
	PhoneNumber   string
	NationalityID uuid.UUID
	UpdatedAt     time.Time
}

// Address is the step-3 record.
type Address struct {
	UserID         uuid.UUID
	StreetAddress  string
	ApartmentSuite string
	CityID         uuid.UUID
	CountryID      uuid.UUID
	State          string
	PostalCode     string
	PhoneNumber    string
	UpdatedAt      time.Time
}

// Education is the step-4 record.
type Education struct {
	UserID         uuid.UUID
	Degree         Degree
	Institution    string
	FieldOfStudy   string
	GraduationYear int
	Honors         string
	UpdatedAt      time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository upserts and reads step records keyed by user id. Getters return
// an error matching shared.ErrNotFound when the step was never submitted.
type Repository interface {
	UpsertPersonalInfo(ctx context.Context, info *PersonalInfo) error
	GetPersonalInfo(ctx context.Context, userID uuid.UUID) (*PersonalInfo, error)

	UpsertAddress(ctx context.Context, addr *Address) error
	GetAddress(ctx context.Context, userID uuid.UUID) (*Address, error)

	UpsertEducation(ctx context.Context, edu *Education) error
	GetEducation(ctx context.Context, userID uuid.UUID) (*Education, error)
}

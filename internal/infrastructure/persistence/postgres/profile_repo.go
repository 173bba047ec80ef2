package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ProfileRepository implements profile.Repository. Each step table holds one
// row per user.
type ProfileRepository struct {
	s scope
}

func notSubmitted(op, what string) error {
	return shared.NewDomainError("profile", op, shared.ErrNotFound, what+" not submitted")
}

func profileWriteErr(what string, err error) error {
	if IsForeignKeyViolation(err) {
		switch constraintOf(err) {
		case "personal_information_user_id_fkey", "address_details_user_id_fkey", "educational_background_user_id_fkey":
			return shared.ErrUserNotFound
		case "address_details_city_id_fkey":
			return shared.ErrCityNotFound
		default:
			return shared.ErrCountryNotFound
		}
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Personal information
// ─────────────────────────────────────────────────────────────────────────────

func (r *ProfileRepository) UpsertPersonalInfo(ctx context.Context, info *profile.PersonalInfo) error {
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO personal_information (user_id, date_of_birth, gender, phone_number, nationality_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			phone_number = EXCLUDED.phone_number,
			nationality_id = EXCLUDED.nationality_id,
			updated_at = EXCLUDED.updated_at
	`, info.UserID, info.DateOfBirth, string(info.Gender), info.PhoneNumber, info.NationalityID, info.UpdatedAt)
	if err != nil {
		return profileWriteErr("personal information", err)
	}
	return nil
}

func (r *ProfileRepository) GetPersonalInfo(ctx context.Context, userID uuid.UUID) (*profile.PersonalInfo, error) {
	var (
		info   profile.PersonalInfo
		gender string
	)
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, date_of_birth, gender, phone_number, nationality_id, updated_at
		FROM personal_information WHERE user_id = $1
	`, userID).Scan(&info.UserID, &info.DateOfBirth, &gender, &info.PhoneNumber, &info.NationalityID, &info.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, notSubmitted("GetPersonalInfo", "personal information")
		}
		return nil, fmt.Errorf("failed to get personal information: %w", err)
	}
	info.Gender = profile.Gender(gender)
	return &info, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Address
// ─────────────────────────────────────────────────────────────────────────────

func (r *ProfileRepository) UpsertAddress(ctx context.Context, a *profile.Address) error {
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO address_details (
			user_id, street_address, apartment_suite, city_id, country_id,
			state, postal_code, phone_number, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			street_address = EXCLUDED.street_address,
			apartment_suite = EXCLUDED.apartment_suite,
			city_id = EXCLUDED.city_id,
			country_id = EXCLUDED.country_id,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			phone_number = EXCLUDED.phone_number,
			updated_at = EXCLUDED.updated_at
	`, a.UserID, a.StreetAddress, a.ApartmentSuite, a.CityID, a.CountryID,
		a.State, a.PostalCode, a.PhoneNumber, a.UpdatedAt)
	if err != nil {
		return profileWriteErr("address", err)
	}
	return nil
}

func (r *ProfileRepository) GetAddress(ctx context.Context, userID uuid.UUID) (*profile.Address, error) {
	var a profile.Address
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, street_address, apartment_suite, city_id, country_id,
		       state, postal_code, phone_number, updated_at
		FROM address_details WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.StreetAddress, &a.ApartmentSuite, &a.CityID, &a.CountryID,
		&a.State, &a.PostalCode, &a.PhoneNumber, &a.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, notSubmitted("GetAddress", "address")
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Education
// ─────────────────────────────────────────────────────────────────────────────

func (r *ProfileRepository) UpsertEducation(ctx context.Context, e *profile.Education) error {
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO educational_background (
			user_id, degree, institution, field_of_study, graduation_year, honors, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			degree = EXCLUDED.degree,
			institution = EXCLUDED.institution,
			field_of_study = EXCLUDED.field_of_study,
			graduation_year = EXCLUDED.graduation_year,
			honors = EXCLUDED.honors,
			updated_at = EXCLUDED.updated_at
	`, e.UserID, string(e.Degree), e.Institution, e.FieldOfStudy, e.GraduationYear, e.Honors, e.UpdatedAt)
	if err != nil {
		return profileWriteErr("education", err)
	}
	return nil
}

func (r *ProfileRepository) GetEducation(ctx context.Context, userID uuid.UUID) (*profile.Education, error) {
	var (
		e      profile.Education
		degree string
	)
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, degree, institution, field_of_study, graduation_year, honors, updated_at
		FROM educational_background WHERE user_id = $1
	`, userID).Scan(&e.UserID, &degree, &e.Institution, &e.FieldOfStudy, &e.GraduationYear, &e.Honors, &e.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, notSubmitted("GetEducation", "education")
		}
		return nil, fmt.Errorf("failed to get education: %w", err)
	}
	e.Degree = profile.Degree(degree)
	return &e, nil
}

var _ profile.Repository = (*ProfileRepository)(nil)

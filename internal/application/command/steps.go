package command

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEP 1: ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

func (h *SubmitStepHandler) createAccount(ctx context.Context, p registration.AccountPayload) (*SubmitStepResult, error) {
	email := shared.NormalizeEmail(p.Email)

	taken, err := h.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, shared.ErrEmailTaken
	}

	hash, err := HashPassword(p.Password, h.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := account.NewUser(account.NewUserParams{
		Email:        email.String(),
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		PasswordHash: hash,
		Now:          h.machine.Now(),
	})

	var progress *registration.Progress
	err = h.uow.Do(ctx, func(tx uow.Repositories) error {
		if err := tx.Accounts().Create(ctx, user); err != nil {
			return err
		}
		progress, err = h.machine.Bind(tx.Registration()).Initialize(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := h.tokens.Issue(user.ID, user.Email.String())
	if err != nil {
		// The account exists; the user can request a new link later.
		h.after.log.Error("failed to issue verification token", logger.UserID(user.ID), logger.Err(err))
	}

	h.after.invalidate(ctx, user.ID)
	h.after.publish(shared.NewAccountCreatedEvent(user.ID.String(), user.Email.String(), user.FirstName, token))

	return &SubmitStepResult{
		UserID:   user.ID,
		Step:     registration.StepAccount,
		Progress: progress,
		Account:  &AccountCreated{User: user, VerificationToken: token},
	}, nil
}

// HashPassword bcrypt-hashes password. cost <= 0 means bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEPS 2-4: PROFILE RECORDS
// ══════════════════════════════════════════════════════════════════════════════

func (h *SubmitStepHandler) savePersonalInfo(ctx context.Context, p registration.PersonalInfoPayload) (*SubmitStepResult, error) {
	dob, err := timeutil.ParseDate(p.DateOfBirth)
	if err != nil {
		return nil, shared.FieldError("date_of_birth", "must be a date in YYYY-MM-DD format")
	}

	tr, err := h.stepTx(ctx, p, nil, func(tx uow.Repositories, user *account.User) error {
		country, err := geo.ResolveCountry(ctx, tx.Geo(), p.Nationality)
		if err != nil {
			return err
		}
		return tx.Profiles().UpsertPersonalInfo(ctx, &profile.PersonalInfo{
			UserID:        user.ID,
			DateOfBirth:   dob,
			Gender:        profile.Gender(p.Gender),
			PhoneNumber:   p.PhoneNumber,
			NationalityID: country.ID,
			UpdatedAt:     h.machine.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return resultOf(tr), nil
}

func (h *SubmitStepHandler) saveAddress(ctx context.Context, p registration.AddressPayload) (*SubmitStepResult, error) {
	tr, err := h.stepTx(ctx, p, nil, func(tx uow.Repositories, user *account.User) error {
		country, err := tx.Geo().GetCountryByCode(ctx, p.CountryCode)
		if err != nil {
			return err
		}
		city, created, err := tx.Geo().GetOrCreateCity(ctx, country.ID, p.City)
		if err != nil {
			return fmt.Errorf("resolve city: %w", err)
		}
		if created {
			h.after.log.Info("city created from address step",
				logger.CountryCode(country.Code),
				logger.String("city", city.Name),
			)
		}
		return tx.Profiles().UpsertAddress(ctx, &profile.Address{
			UserID:         user.ID,
			StreetAddress:  p.StreetAddress,
			ApartmentSuite: p.ApartmentSuite,
			CityID:         city.ID,
			CountryID:      country.ID,
			State:          p.State,
			PostalCode:     p.PostalCode,
			PhoneNumber:    p.PhoneNumber,
			UpdatedAt:      h.machine.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return resultOf(tr), nil
}

func (h *SubmitStepHandler) saveEducation(ctx context.Context, p registration.EducationPayload) (*SubmitStepResult, error) {
	tr, err := h.stepTx(ctx, p, nil, func(tx uow.Repositories, user *account.User) error {
		return tx.Profiles().UpsertEducation(ctx, &profile.Education{
			UserID:         user.ID,
			Degree:         profile.Degree(p.Degree),
			Institution:    p.Institution,
			FieldOfStudy:   p.FieldOfStudy,
			GraduationYear: p.GraduationYear,
			Honors:         p.Honors,
			UpdatedAt:      h.machine.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return resultOf(tr), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP 5: COURSE SELECTION
// ══════════════════════════════════════════════════════════════════════════════

func (h *SubmitStepHandler) selectCourses(ctx context.Context, p registration.CourseSelectionPayload) (*SubmitStepResult, error) {
	var selection *course.Selection
	tr, err := h.stepTx(ctx, p, nil, func(tx uow.Repositories, user *account.User) error {
		courses, err := tx.Courses().GetByIDs(ctx, p.CourseIDs)
		if err != nil {
			return fmt.Errorf("load courses: %w", err)
		}
		if len(courses) != len(p.CourseIDs) {
			return shared.ErrCourseNotFound
		}
		for i := range courses {
			if !courses[i].IsActive {
				return shared.FieldError("courses", fmt.Sprintf("course %q is not available", courses[i].Name))
			}
		}

		selection = course.NewSelection(user.ID, courses, p.StudyDuration, h.machine.Now())
		return tx.Selections().Upsert(ctx, selection)
	})
	if err != nil {
		return nil, err
	}

	res := resultOf(tr)
	res.Selection = selection
	return res, nil
}

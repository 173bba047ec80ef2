package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/application/validation"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN: COURSES
// ══════════════════════════════════════════════════════════════════════════════

// CourseCommand creates (ID nil) or updates a catalog course. Fee is in major
// units.
type CourseCommand struct {
	ID                 *uuid.UUID
	Name               string
	Description        string
	Fee                float64
	Duration           string
	DiscountPercentage int
	IsActive           bool
}

func (c CourseCommand) params() course.Params {
	return course.Params{
		Name:               c.Name,
		Description:        c.Description,
		Fee:                shared.MoneyFromFloat(c.Fee),
		Duration:           c.Duration,
		DiscountPercentage: c.DiscountPercentage,
		IsActive:           c.IsActive,
	}
}

// CourseAdminHandler manages the catalog.
type CourseAdminHandler struct {
	courses course.Repository
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewCourseAdminHandler creates a CourseAdminHandler.
func NewCourseAdminHandler(courses course.Repository, clock timeutil.Clock, log *logger.Logger) *CourseAdminHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CourseAdminHandler{courses: courses, clock: clock, log: log}
}

// Save creates or updates a course.
func (h *CourseAdminHandler) Save(ctx context.Context, cmd CourseCommand) (*course.Course, error) {
	now := h.clock()

	if cmd.ID == nil {
		c, err := course.NewCourse(cmd.params(), now)
		if err != nil {
			return nil, fmt.Errorf("save_course: %w", err)
		}
		if err := h.courses.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("save_course: %w", err)
		}
		h.log.Info("course created", logger.String("course_id", c.ID.String()), logger.String("name", c.Name))
		return c, nil
	}

	c, err := h.courses.GetByID(ctx, *cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("save_course: %w", err)
	}
	if err := c.Update(cmd.params(), now); err != nil {
		return nil, fmt.Errorf("save_course: %w", err)
	}
	if err := h.courses.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("save_course: %w", err)
	}
	return c, nil
}

// SetActive activates or deactivates a course.
func (h *CourseAdminHandler) SetActive(ctx context.Context, id uuid.UUID, active bool) (*course.Course, error) {
	c, err := h.courses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("set_course_active: %w", err)
	}
	if active {
		c.Activate(h.clock())
	} else {
		c.Deactivate(h.clock())
	}
	if err := h.courses.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("set_course_active: %w", err)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN: USERS
// ══════════════════════════════════════════════════════════════════════════════

// CreateUserCommand creates a user from the back office. The account is
// active immediately and starts the workflow at step 1.
type CreateUserCommand struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,password_strength"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	IsStaff   bool   `json:"is_staff"`
}

func (c CreateUserCommand) normalized() CreateUserCommand {
	c.Email = shared.NormalizeEmail(c.Email).String()
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	return c
}

// OverrideStepCommand sets current_step explicitly, lower values included.
type OverrideStepCommand struct {
	UserID uuid.UUID
	Step   registration.Step
	Notes  *string
}

// UserAdminHandler manages users and their workflow position.
type UserAdminHandler struct {
	uow        uow.UnitOfWork
	accounts   account.Repository
	machine    *registration.Machine
	validator  *validation.Validator
	bcryptCost int
	after      afterCommit
}

// NewUserAdminHandler creates a UserAdminHandler.
func NewUserAdminHandler(
	unit uow.UnitOfWork,
	accounts account.Repository,
	machine *registration.Machine,
	validator *validation.Validator,
	bcryptCost int,
	events shared.EventPublisher,
	cache ProgressInvalidator,
	log *logger.Logger,
) *UserAdminHandler {
	return &UserAdminHandler{
		uow:        unit,
		accounts:   accounts,
		machine:    machine,
		validator:  validator,
		bcryptCost: bcryptCost,
		after:      newAfterCommit(events, cache, log),
	}
}

// Create adds an active user.
func (h *UserAdminHandler) Create(ctx context.Context, cmd CreateUserCommand) (*account.User, error) {
	cmd = cmd.normalized()
	if err := h.validator.Struct(cmd); err != nil {
		return nil, fmt.Errorf("create_user: %w", err)
	}

	hash, err := HashPassword(cmd.Password, h.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("create_user: %w", err)
	}

	user := account.NewUser(account.NewUserParams{
		Email:        cmd.Email,
		FirstName:    cmd.FirstName,
		LastName:     cmd.LastName,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      cmd.IsStaff,
		Now:          h.machine.Now(),
	})

	err = h.uow.Do(ctx, func(tx uow.Repositories) error {
		if err := tx.Accounts().Create(ctx, user); err != nil {
			return err
		}
		_, err := h.machine.Bind(tx.Registration()).Initialize(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create_user: %w", err)
	}

	h.after.log.Info("user created by admin", logger.UserID(user.ID))
	return user, nil
}

// Delete soft-deletes a user. Deleting twice is a no-op.
func (h *UserAdminHandler) Delete(ctx context.Context, id uuid.UUID) error {
	user, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete_user: %w", err)
	}
	if user.IsDeleted() {
		return nil
	}

	user.SoftDelete(h.machine.Now())
	if err := h.accounts.Update(ctx, user); err != nil {
		return fmt.Errorf("delete_user: %w", err)
	}

	h.after.invalidate(ctx, user.ID)
	h.after.publish(shared.NewAccountDeletedEvent(user.ID.String()))
	return nil
}

// OverrideStep moves a user to any step.
func (h *UserAdminHandler) OverrideStep(ctx context.Context, cmd OverrideStepCommand) (*registration.Progress, error) {
	tr, err := h.machine.Override(ctx, cmd.UserID, cmd.Step, cmd.Notes)
	if err != nil {
		return nil, fmt.Errorf("override_step: %w", err)
	}

	h.after.log.Info("step overridden",
		logger.UserID(cmd.UserID),
		logger.Int("from_step", int(tr.From)),
		logger.Int("to_step", int(tr.To)),
	)
	h.after.transition(ctx, tr)
	return tr.Progress, nil
}

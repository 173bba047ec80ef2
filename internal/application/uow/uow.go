// Package uow defines the transaction boundary shared by commands and sagas.
package uow

import (
	"context"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
)

// Repositories are bound to a single transaction.
type Repositories interface {
	Accounts() account.Repository
	Registration() registration.Repository
	Profiles() profile.Repository
	Courses() course.Repository
	Selections() course.SelectionRepository
	Payments() payment.Repository
	Geo() geo.Repository
}

// UnitOfWork runs fn in one transaction. If fn returns an error every write
// made through the Repositories is rolled back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Repositories) error) error
}

// Package course contains the course catalog, the per-user selection and the
// bundle pricing rules.
package course

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course is a catalog entry.
type Course struct {
	ID          uuid.UUID
	Name        string
	Description string

	// Fee - list price before the course discount.
	Fee shared.Money

	// Duration - free text such as "6 months".
	Duration string

	// DiscountPercentage - 0..100.
	DiscountPercentage int

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DiscountedFee returns Fee × (1 − DiscountPercentage/100), rounded to cents.
func (c *Course) DiscountedFee() shared.Money {
	return DiscountedFee(c.Fee, c.DiscountPercentage)
}

// DiscountedFee applies pct percent off fee. pct is clamped to 0..100, so the
// result never increases as pct grows.
func DiscountedFee(fee shared.Money, pct int) shared.Money {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fee - fee.Percent(pct)
}

// Activate makes the course selectable.
func (c *Course) Activate(now time.Time) {
	c.IsActive = true
	c.UpdatedAt = now
}

// Deactivate hides the course from the catalog. Existing selections keep it.
func (c *Course) Deactivate(now time.Time) {
	c.IsActive = false
	c.UpdatedAt = now
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Params are the editable course attributes.
type Params struct {
	Name               string
	Description        string
	Fee                shared.Money
	Duration           string
	DiscountPercentage int
	IsActive           bool
}

// Validate checks Params and returns a *shared.ValidationError.
func (p Params) Validate() error {
	v := shared.NewValidationError()
	if strings.TrimSpace(p.Name) == "" {
		v.Add("name", "name is required")
	} else if len(p.Name) > 255 {
		v.Add("name", "name must be at most 255 characters")
	}
	if p.Fee < 0 {
		v.Add("fee", "fee must not be negative")
	}
	if p.DiscountPercentage < 0 || p.DiscountPercentage > 100 {
		v.Add("discount_percentage", "discount percentage must be between 0 and 100")
	}
	if len(p.Duration) > 50 {
		v.Add("duration", "duration must be at most 50 characters")
	}
	return v.OrNil()
}

// NewCourse validates params and builds a course.
func NewCourse(params Params, now time.Time) (*Course, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	c := &Course{ID: uuid.New(), CreatedAt: now}
	c.apply(params, now)
	return c, nil
}

// Update replaces the editable attributes.
func (c *Course) Update(params Params, now time.Time) error {
	if err := params.Validate(); err != nil {
		return err
	}
	c.apply(params, now)
	return nil
}

func (c *Course) apply(p Params, now time.Time) {
	c.Name = strings.TrimSpace(p.Name)
	c.Description = strings.TrimSpace(p.Description)
	c.Fee = p.Fee
	c.Duration = strings.TrimSpace(p.Duration)
	c.DiscountPercentage = p.DiscountPercentage
	c.IsActive = p.IsActive
	c.UpdatedAt = now
}

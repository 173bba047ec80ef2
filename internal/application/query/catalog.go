package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CourseDTO is a catalog entry with amounts in major units.
type CourseDTO struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	Fee                float64   `json:"fee"`
	DiscountPercentage int       `json:"discount_percentage"`
	DiscountedFee      float64   `json:"discounted_fee"`
	Duration           string    `json:"duration,omitempty"`
	IsActive           bool      `json:"is_active"`
}

// NewCourseDTO maps a course.
func NewCourseDTO(c *course.Course) CourseDTO {
	return CourseDTO{
		ID:                 c.ID,
		Name:               c.Name,
		Description:        c.Description,
		Fee:                c.Fee.Float(),
		DiscountPercentage: c.DiscountPercentage,
		DiscountedFee:      c.DiscountedFee().Float(),
		Duration:           c.Duration,
		IsActive:           c.IsActive,
	}
}

// UserDTO never carries the password hash.
type UserDTO struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	IsStaff       bool       `json:"is_staff"`
	Status        string     `json:"status"`
	DateJoined    time.Time  `json:"date_joined"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// NewUserDTO maps a user.
func NewUserDTO(u *account.User) UserDTO {
	return UserDTO{
		ID:            u.ID,
		Email:         u.Email.String(),
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		IsStaff:       u.IsStaff,
		Status:        string(u.Status),
		DateJoined:    u.DateJoined,
		DeletedAt:     u.DeletedAt,
	}
}

// CountryDTO is a country lookup entry.
type CountryDTO struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	PhoneCode string `json:"phone_code,omitempty"`
	FlagURL   string `json:"flag_url,omitempty"`
}

// CityDTO is a city lookup entry.
type CityDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// PageDTO is a paginated listing.
type PageDTO[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
}

func pageOf[S, T any](p shared.Page[S], mapFn func(S) T) PageDTO[T] {
	items := make([]T, 0, len(p.Items))
	for _, s := range p.Items {
		items = append(items, mapFn(s))
	}
	return PageDTO[T]{
		Items:      items,
		Page:       p.Pagination.Page,
		PageSize:   p.Pagination.Limit(),
		TotalCount: p.TotalCount,
		HasMore:    p.HasMore(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// CatalogQueries serves the course catalog, geo lookups and email checks.
type CatalogQueries struct {
	accounts account.Repository
	courses  course.Repository
	geo      geo.Repository
}

// NewCatalogQueries creates CatalogQueries.
func NewCatalogQueries(accounts account.Repository, courses course.Repository, geoRepo geo.Repository) *CatalogQueries {
	return &CatalogQueries{accounts: accounts, courses: courses, geo: geoRepo}
}

// Courses lists the catalog. activeOnly is what registrants see.
func (q *CatalogQueries) Courses(ctx context.Context, activeOnly bool, p shared.Pagination) (PageDTO[CourseDTO], error) {
	page, err := q.courses.List(ctx, course.ListOptions{Pagination: p, ActiveOnly: activeOnly})
	if err != nil {
		return PageDTO[CourseDTO]{}, fmt.Errorf("list_courses: %w", err)
	}
	return pageOf(page, NewCourseDTO), nil
}

// EmailAvailable reports whether email can register.
func (q *CatalogQueries) EmailAvailable(ctx context.Context, email string) (bool, error) {
	normalized := shared.NormalizeEmail(email)
	if !shared.LooksLikeEmail(normalized.String()) {
		return false, shared.FieldError("email", "invalid email format")
	}
	taken, err := q.accounts.ExistsByEmail(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("email_availability: %w", err)
	}
	return !taken, nil
}

// Countries lists active countries.
func (q *CatalogQueries) Countries(ctx context.Context) ([]CountryDTO, error) {
	countries, err := q.geo.ListCountries(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list_countries: %w", err)
	}
	out := make([]CountryDTO, 0, len(countries))
	for _, c := range countries {
		out = append(out, CountryDTO{Code: c.Code, Name: c.Name, PhoneCode: c.PhoneCode, FlagURL: c.FlagURL})
	}
	return out, nil
}

// Cities lists the cities of the country with the given ISO code.
func (q *CatalogQueries) Cities(ctx context.Context, countryCode string) ([]CityDTO, error) {
	code, ok := geo.NormalizeCountryCode(countryCode)
	if !ok {
		return nil, shared.FieldError("country", "must be a two-letter ISO code")
	}
	country, err := q.geo.GetCountryByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list_cities: %w", err)
	}
	cities, err := q.geo.ListCities(ctx, country.ID)
	if err != nil {
		return nil, fmt.Errorf("list_cities: %w", err)
	}
	out := make([]CityDTO, 0, len(cities))
	for _, c := range cities {
		out = append(out, CityDTO{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// AdminQueries serves back-office listings.
type AdminQueries struct {
	accounts account.Repository
	payments payment.Repository
}

// NewAdminQueries creates AdminQueries.
func NewAdminQueries(accounts account.Repository, payments payment.Repository) *AdminQueries {
	return &AdminQueries{accounts: accounts, payments: payments}
}

// Users lists users newest first.
func (q *AdminQueries) Users(ctx context.Context, opts account.ListOptions) (PageDTO[UserDTO], error) {
	page, err := q.accounts.List(ctx, opts)
	if err != nil {
		return PageDTO[UserDTO]{}, fmt.Errorf("list_users: %w", err)
	}
	return pageOf(page, NewUserDTO), nil
}

// Payments lists payment attempts newest first.
func (q *AdminQueries) Payments(ctx context.Context, opts payment.ListOptions) (PageDTO[*PaymentDTO], error) {
	page, err := q.payments.List(ctx, opts)
	if err != nil {
		return PageDTO[*PaymentDTO]{}, fmt.Errorf("list_payments: %w", err)
	}
	return pageOf(page, NewPaymentDTO), nil
}

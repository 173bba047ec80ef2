// Package geo holds country and city reference data used by the personal
// information and address steps.
package geo

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// MaxPhoneCodeLength bounds Country.PhoneCode.
const MaxPhoneCodeLength = 20

// Country is an ISO 3166-1 country.
type Country struct {
	ID           uuid.UUID
	Code         string
	Name         string
	PhoneCode    string
	FlagURL      string
	Population   int64
	Region       string
	Subregion    string
	CurrencyName string
	CurrencyCode string
	Timezone     string
	IsActive     bool
	UpdatedAt    time.Time
}

// City belongs to a country; (Name, CountryID) is unique.
type City struct {
	ID         uuid.UUID
	CountryID  uuid.UUID
	Name       string
	Latitude   *float64
	Longitude  *float64
	Population *int64
	UpdatedAt  time.Time
}

// NormalizeCountryCode upper-cases code and checks it is two letters.
func NormalizeCountryCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", false
	}
	for _, r := range code {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return "", false
		}
	}
	return code, true
}

// PhoneCode joins the international dialing root with every suffix and
// truncates the result to MaxPhoneCodeLength.
func PhoneCode(root string, suffixes []string) string {
	code := strings.TrimSpace(root + strings.Join(suffixes, ""))
	if len(code) > MaxPhoneCodeLength {
		code = code[:MaxPhoneCodeLength]
	}
	return code
}

// CityNameFromDisplay returns the first comma-separated segment of a geocoder
// display name.
func CityNameFromDisplay(displayName string) string {
	name, _, _ := strings.Cut(displayName, ",")
	return strings.TrimSpace(name)
}

// Repository stores reference data.
type Repository interface {
	// UpsertCountry inserts or updates by Code and fills c.ID.
	UpsertCountry(ctx context.Context, c *Country) error

	// GetCountryByCode returns shared.ErrCountryNotFound if absent.
	GetCountryByCode(ctx context.Context, code string) (*Country, error)

	// GetCountryByID returns shared.ErrCountryNotFound if absent.
	GetCountryByID(ctx context.Context, id uuid.UUID) (*Country, error)

	// FindCountryByName matches case-insensitively.
	// Returns shared.ErrCountryNotFound if absent.
	FindCountryByName(ctx context.Context, name string) (*Country, error)

	// ListCountries returns countries ordered by name.
	ListCountries(ctx context.Context, activeOnly bool) ([]*Country, error)

	// UpsertCity inserts or updates by (Name, CountryID) and fills c.ID.
	UpsertCity(ctx context.Context, c *City) error

	// GetOrCreateCity returns the city named name in countryID, creating it
	// when missing. created reports whether a row was inserted.
	GetOrCreateCity(ctx context.Context, countryID uuid.UUID, name string) (city *City, created bool, err error)

	// ListCities returns cities of a country ordered by name.
	ListCities(ctx context.Context, countryID uuid.UUID) ([]*City, error)
}

// ResolveCountry looks ref up as an ISO code first and as a name second.
func ResolveCountry(ctx context.Context, repo Repository, ref string) (*Country, error) {
	if code, ok := NormalizeCountryCode(ref); ok {
		c, err := repo.GetCountryByCode(ctx, code)
		if err == nil {
			return c, nil
		}
		if !shared.IsNotFound(err) {
			return nil, err
		}
	}
	return repo.FindCountryByName(ctx, strings.TrimSpace(ref))
}

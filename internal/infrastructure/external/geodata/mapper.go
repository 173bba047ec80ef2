package geodata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
)

// MappingError describes a provider record that could not become a domain
// value. The import counts these as skipped.
type MappingError struct {
	Field   string
	Value   string
	Message string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s=%q: %s", e.Field, e.Value, e.Message)
}

// Mapper converts provider DTOs into geo entities.
type Mapper struct{}

// NewMapper creates a Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// CountryFromDTO validates the ISO alpha-2 code and builds the phone code from
// the IDD root and every suffix.
func (m *Mapper) CountryFromDTO(dto *CountryDTO) (*geo.Country, error) {
	code, ok := geo.NormalizeCountryCode(dto.CCA2)
	if !ok {
		return nil, &MappingError{Field: "cca2", Value: dto.CCA2, Message: "not an ISO alpha-2 code"}
	}

	name := strings.TrimSpace(dto.Name.Common)
	if name == "" {
		name = "Unknown"
	}

	c := &geo.Country{
		Code:       code,
		Name:       name,
		PhoneCode:  geo.PhoneCode(dto.IDD.Root, dto.IDD.Suffixes),
		FlagURL:    dto.Flags.PNG,
		Population: dto.Population,
		Region:     dto.Region,
		Subregion:  dto.Subregion,
		IsActive:   true,
	}

	if len(dto.Currencies) > 0 {
		codes := make([]string, 0, len(dto.Currencies))
		for k := range dto.Currencies {
			codes = append(codes, k)
		}
		sort.Strings(codes)
		c.CurrencyCode = codes[0]
		c.CurrencyName = dto.Currencies[codes[0]].Name
	}
	if len(dto.Timezones) > 0 {
		c.Timezone = dto.Timezones[0]
	}
	return c, nil
}

// CityFromPlace takes the first segment of the display name as the city name.
// Unparseable coordinates are dropped rather than failing the record.
func (m *Mapper) CityFromPlace(countryID uuid.UUID, p *PlaceDTO) (*geo.City, error) {
	name := geo.CityNameFromDisplay(p.DisplayName)
	if name == "" {
		return nil, &MappingError{Field: "display_name", Value: p.DisplayName, Message: "empty"}
	}
	return &geo.City{
		CountryID: countryID,
		Name:      name,
		Latitude:  parseCoordinate(p.Lat),
		Longitude: parseCoordinate(p.Lon),
	}, nil
}

// CitiesFromPlaces maps every place, collapsing duplicate names. The returned
// count is the number of places that were dropped.
func (m *Mapper) CitiesFromPlaces(countryID uuid.UUID, places []PlaceDTO) ([]*geo.City, int) {
	seen := make(map[string]struct{}, len(places))
	out := make([]*geo.City, 0, len(places))
	dropped := 0
	for i := range places {
		city, err := m.CityFromPlace(countryID, &places[i])
		if err != nil {
			dropped++
			continue
		}
		key := strings.ToLower(city.Name)
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, city)
	}
	return out, dropped
}

func parseCoordinate(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

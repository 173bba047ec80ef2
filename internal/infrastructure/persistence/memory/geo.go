package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

type geoRepo struct{ s *Store }

func (r geoRepo) UpsertCountry(_ context.Context, c *geo.Country) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, existing := range r.s.data.countries {
		if existing.Code == c.Code {
			c.ID = id
			break
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.data.countries[c.ID] = *c
	return nil
}

func (r geoRepo) GetCountryByCode(_ context.Context, code string) (*geo.Country, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, c := range r.s.data.countries {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, shared.ErrCountryNotFound
}

func (r geoRepo) GetCountryByID(_ context.Context, id uuid.UUID) (*geo.Country, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.data.countries[id]
	if !ok {
		return nil, shared.ErrCountryNotFound
	}
	return &c, nil
}

func (r geoRepo) FindCountryByName(_ context.Context, name string) (*geo.Country, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, c := range r.s.data.countries {
		if strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, shared.ErrCountryNotFound
}

func (r geoRepo) ListCountries(_ context.Context, activeOnly bool) ([]*geo.Country, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*geo.Country, 0, len(r.s.data.countries))
	for _, c := range r.s.data.countries {
		if activeOnly && !c.IsActive {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sortBy(out, func(a, b *geo.Country) bool { return a.Name < b.Name })
	return out, nil
}

func (r geoRepo) findCity(countryID uuid.UUID, name string) (geo.City, bool) {
	for _, c := range r.s.data.cities {
		if c.CountryID == countryID && c.Name == name {
			return c, true
		}
	}
	return geo.City{}, false
}

func (r geoRepo) UpsertCity(_ context.Context, c *geo.City) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.findCity(c.CountryID, c.Name); ok {
		c.ID = existing.ID
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.data.cities[c.ID] = *c
	return nil
}

func (r geoRepo) GetOrCreateCity(_ context.Context, countryID uuid.UUID, name string) (*geo.City, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.findCity(countryID, name); ok {
		return &existing, false, nil
	}
	c := geo.City{ID: uuid.New(), CountryID: countryID, Name: name, UpdatedAt: time.Now().UTC()}
	r.s.data.cities[c.ID] = c
	return &c, true, nil
}

func (r geoRepo) ListCities(_ context.Context, countryID uuid.UUID) ([]*geo.City, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*geo.City, 0)
	for _, c := range r.s.data.cities {
		if c.CountryID != countryID {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sortBy(out, func(a, b *geo.City) bool { return a.Name < b.Name })
	return out, nil
}

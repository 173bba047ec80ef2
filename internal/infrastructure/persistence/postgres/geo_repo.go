package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// GeoRepository implements geo.Repository.
type GeoRepository struct {
	s scope
}

const countryColumns = `
	id, code, name, phone_code, flag_url, population, region, subregion,
	currency_name, currency_code, timezone, is_active, updated_at`

const cityColumns = `id, country_id, name, latitude, longitude, population, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// Countries
// ─────────────────────────────────────────────────────────────────────────────

// UpsertCountry keeps the stored id on conflict and writes it back into c.
func (r *GeoRepository) UpsertCountry(ctx context.Context, c *geo.Country) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	err := r.s.q.QueryRow(ctx, `
		INSERT INTO countries (`+countryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			phone_code = EXCLUDED.phone_code,
			flag_url = EXCLUDED.flag_url,
			population = EXCLUDED.population,
			region = EXCLUDED.region,
			subregion = EXCLUDED.subregion,
			currency_name = EXCLUDED.currency_name,
			currency_code = EXCLUDED.currency_code,
			timezone = EXCLUDED.timezone,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, c.ID, c.Code, c.Name, c.PhoneCode, c.FlagURL, c.Population, c.Region, c.Subregion,
		c.CurrencyName, c.CurrencyCode, c.Timezone, c.IsActive, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert country %s: %w", c.Code, err)
	}
	return nil
}

func (r *GeoRepository) GetCountryByCode(ctx context.Context, code string) (*geo.Country, error) {
	return scanCountry(r.s.q.QueryRow(ctx, `SELECT `+countryColumns+` FROM countries WHERE code = $1`, code))
}

func (r *GeoRepository) GetCountryByID(ctx context.Context, id uuid.UUID) (*geo.Country, error) {
	return scanCountry(r.s.q.QueryRow(ctx, `SELECT `+countryColumns+` FROM countries WHERE id = $1`, id))
}

func (r *GeoRepository) FindCountryByName(ctx context.Context, name string) (*geo.Country, error) {
	return scanCountry(r.s.q.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE LOWER(name) = LOWER($1) ORDER BY code LIMIT 1`, name))
}

func (r *GeoRepository) ListCountries(ctx context.Context, activeOnly bool) ([]*geo.Country, error) {
	query := `SELECT ` + countryColumns + ` FROM countries`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := r.s.q.Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	var out []*geo.Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCountry(row pgx.Row) (*geo.Country, error) {
	var c geo.Country
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.PhoneCode, &c.FlagURL, &c.Population, &c.Region, &c.Subregion,
		&c.CurrencyName, &c.CurrencyCode, &c.Timezone, &c.IsActive, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCountryNotFound
		}
		return nil, fmt.Errorf("failed to scan country: %w", err)
	}
	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cities
// ─────────────────────────────────────────────────────────────────────────────

// UpsertCity keeps the stored id on conflict. Coordinates and population are
// only overwritten with non-null values.
func (r *GeoRepository) UpsertCity(ctx context.Context, c *geo.City) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	err := r.s.q.QueryRow(ctx, `
		INSERT INTO cities (`+cityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT cities_name_country_key DO UPDATE SET
			latitude = COALESCE(EXCLUDED.latitude, cities.latitude),
			longitude = COALESCE(EXCLUDED.longitude, cities.longitude),
			population = COALESCE(EXCLUDED.population, cities.population),
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, c.ID, c.CountryID, c.Name, c.Latitude, c.Longitude, c.Population, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrCountryNotFound
		}
		return fmt.Errorf("failed to upsert city %s: %w", c.Name, err)
	}
	return nil
}

// GetOrCreateCity inserts with DO NOTHING and falls back to a read, so two
// callers racing on one name end up with the same row.
func (r *GeoRepository) GetOrCreateCity(ctx context.Context, countryID uuid.UUID, name string) (*geo.City, bool, error) {
	city := &geo.City{ID: uuid.New(), CountryID: countryID, Name: name, UpdatedAt: time.Now()}
	tag, err := r.s.q.Exec(ctx, `
		INSERT INTO cities (id, country_id, name, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT cities_name_country_key DO NOTHING
	`, city.ID, city.CountryID, city.Name, city.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, false, shared.ErrCountryNotFound
		}
		return nil, false, fmt.Errorf("failed to create city %s: %w", name, err)
	}
	if tag.RowsAffected() == 1 {
		return city, true, nil
	}

	existing, err := scanCity(r.s.q.QueryRow(ctx,
		`SELECT `+cityColumns+` FROM cities WHERE country_id = $1 AND name = $2`, countryID, name))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *GeoRepository) ListCities(ctx context.Context, countryID uuid.UUID) ([]*geo.City, error) {
	rows, err := r.s.q.Query(ctx,
		`SELECT `+cityColumns+` FROM cities WHERE country_id = $1 ORDER BY name`, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	defer rows.Close()

	var out []*geo.City
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCity(row pgx.Row) (*geo.City, error) {
	var c geo.City
	err := row.Scan(&c.ID, &c.CountryID, &c.Name, &c.Latitude, &c.Longitude, &c.Population, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCityNotFound
		}
		return nil, fmt.Errorf("failed to scan city: %w", err)
	}
	return &c, nil
}

var _ geo.Repository = (*GeoRepository)(nil)

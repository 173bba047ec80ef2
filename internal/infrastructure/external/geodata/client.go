// Package geodata fetches country and city reference data from RestCountries
// and the Nominatim geocoder.
package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/pkg/circuitbreaker"
	"github.com/campus-enroll/registration-hub/pkg/retry"
)

// countryFields limits the RestCountries payload to what the mapper reads.
const countryFields = "cca2,name,idd,region,subregion,population,flags,currencies,timezones"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the reference-data client.
type ClientConfig struct {
	// CountriesURL is the RestCountries "all" endpoint.
	CountriesURL string

	// GeocoderURL is the Nominatim search endpoint.
	GeocoderURL string

	// UserAgent is required by the Nominatim usage policy.
	UserAgent string

	Timeout time.Duration

	// MaxAttempts counts the first request.
	MaxAttempts int

	// InitialBackoff doubles after every failed attempt.
	InitialBackoff time.Duration

	// DefaultRetryAfter is used for a 429 without a Retry-After header.
	DefaultRetryAfter time.Duration

	// PlacesPerCountry is passed to Nominatim as limit.
	PlacesPerCountry int

	GeocoderRateLimit RateLimiterConfig

	Logger *slog.Logger
}

// DefaultClientConfig returns production endpoints and limits.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CountriesURL:      "https://restcountries.com/v3.1/all",
		GeocoderURL:       "https://nominatim.openstreetmap.org/search",
		UserAgent:         "registration-hub/1.0",
		Timeout:           30 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    60 * time.Second,
		DefaultRetryAfter: 60 * time.Second,
		PlacesPerCountry:  50,
		GeocoderRateLimit: GeocoderRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to both providers. Geocoder calls share one rate limiter so
// concurrent callers stay within the provider's policy.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *RateLimiter
	countries  *circuitbreaker.CircuitBreaker
	geocoder   *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	mapper     *Mapper
}

// NewClient creates a Client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.DefaultRetryAfter <= 0 {
		config.DefaultRetryAfter = 60 * time.Second
	}
	logger := config.Logger.With("component", "geodata")

	onState := func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	onRetry := func(attempt int, err error, delay time.Duration) {
		logger.Warn("reference data request failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		limiter:    NewRateLimiter(config.GeocoderRateLimit),
		countries:  circuitbreaker.ReferenceDataBreaker("restcountries", onState),
		geocoder:   circuitbreaker.ReferenceDataBreaker("nominatim", onState),
		retrier:    retry.ReferenceDataRetrier(config.MaxAttempts, config.InitialBackoff, onRetry),
		mapper:     NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchCountries returns every country with a valid ISO alpha-2 code. Records
// that fail mapping are counted in skipped.
func (c *Client) FetchCountries(ctx context.Context) (countries []*geo.Country, skipped int, err error) {
	u, err := url.Parse(c.config.CountriesURL)
	if err != nil {
		return nil, 0, fmt.Errorf("countries url: %w", err)
	}
	q := u.Query()
	q.Set("fields", countryFields)
	u.RawQuery = q.Encode()

	var dtos []CountryDTO
	if err := c.fetch(ctx, c.countries, false, u.String(), &dtos); err != nil {
		return nil, 0, fmt.Errorf("fetch countries: %w", err)
	}

	countries = make([]*geo.Country, 0, len(dtos))
	for i := range dtos {
		country, err := c.mapper.CountryFromDTO(&dtos[i])
		if err != nil {
			skipped++
			c.logger.Debug("skipping country", "name", dtos[i].Name.Common, "error", err)
			continue
		}
		countries = append(countries, country)
	}
	return countries, skipped, nil
}

// FetchCities searches the geocoder for places in country. The country must
// already carry its stored ID.
func (c *Client) FetchCities(ctx context.Context, country *geo.Country) ([]*geo.City, error) {
	u, err := url.Parse(c.config.GeocoderURL)
	if err != nil {
		return nil, fmt.Errorf("geocoder url: %w", err)
	}
	q := u.Query()
	q.Set("country", country.Name)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	if c.config.PlacesPerCountry > 0 {
		q.Set("limit", strconv.Itoa(c.config.PlacesPerCountry))
	}
	u.RawQuery = q.Encode()

	var places []PlaceDTO
	if err := c.fetch(ctx, c.geocoder, true, u.String(), &places); err != nil {
		return nil, fmt.Errorf("fetch cities for %s: %w", country.Code, err)
	}

	cities, dropped := c.mapper.CitiesFromPlaces(country.ID, places)
	if dropped > 0 {
		c.logger.Debug("dropped places", "country", country.Code, "count", dropped)
	}
	return cities, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// fetch performs a GET with retries. Each attempt passes the breaker and, for
// the geocoder, the rate limiter.
func (c *Client) fetch(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, limited bool, rawURL string, out any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		if limited {
			if err := c.limiter.Allow(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, rawURL, out)
		})
		if circuitbreaker.IsRejected(err) {
			return retry.Permanent(err)
		}
		if wait, ok := retry.ThrottleWait(err); ok && limited {
			c.limiter.RecordRateLimitHit(wait)
		}
		return err
	})
}

// doSingleRequest classifies failures for the retrier: 429 is throttled,
// 5xx and network errors are retryable, other statuses are final.
func (c *Client) doSingleRequest(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.Throttled(&StatusError{Code: resp.StatusCode, URL: rawURL}, c.retryAfter(resp))
	case resp.StatusCode >= 500:
		return retry.Retryable(&StatusError{Code: resp.StatusCode, URL: rawURL})
	case resp.StatusCode >= 400:
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.config.DefaultRetryAfter
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

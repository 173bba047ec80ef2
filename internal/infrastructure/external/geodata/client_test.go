package geodata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
)

const countriesJSON = `[
  {
    "cca2": "kz",
    "name": {"common": "Kazakhstan", "official": "Republic of Kazakhstan"},
    "idd": {"root": "+7", "suffixes": ["6", "7"]},
    "region": "Asia",
    "subregion": "Central Asia",
    "population": 18754440,
    "flags": {"png": "https://flagcdn.com/w320/kz.png"},
    "currencies": {"KZT": {"name": "Kazakhstani tenge", "symbol": "₸"}},
    "timezones": ["UTC+05:00", "UTC+06:00"]
  },
  {
    "cca2": "",
    "name": {"common": "Nowhere"}
  },
  {
    "cca2": "US",
    "name": {"common": "United States"},
    "idd": {"root": "+1", "suffixes": ["201","202","203","205","206","207","208","209","210"]}
  }
]`

func testConfig(srv *httptest.Server) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.CountriesURL = srv.URL + "/v3.1/all"
	cfg.GeocoderURL = srv.URL + "/search"
	cfg.InitialBackoff = time.Millisecond
	cfg.DefaultRetryAfter = time.Millisecond
	cfg.GeocoderRateLimit = RateLimiterConfig{RequestsPerSecond: 1000, BurstSize: 10, WaitTimeout: time.Second}
	return cfg
}

func TestClient_FetchCountries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3.1/all", r.URL.Path)
		assert.Equal(t, countryFields, r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(countriesJSON))
	}))
	defer srv.Close()

	countries, skipped, err := NewClient(testConfig(srv)).FetchCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, countries, 2)

	kz := countries[0]
	assert.Equal(t, "KZ", kz.Code)
	assert.Equal(t, "+767", kz.PhoneCode)
	assert.Equal(t, "KZT", kz.CurrencyCode)
	assert.Equal(t, "Kazakhstani tenge", kz.CurrencyName)
	assert.Equal(t, "UTC+05:00", kz.Timezone)
	assert.Equal(t, int64(18754440), kz.Population)

	us := countries[1]
	assert.Len(t, us.PhoneCode, geo.MaxPhoneCodeLength)
	assert.Equal(t, "+1201202203205206207", us.PhoneCode)
}

func TestClient_FetchCities_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Kazakhstan", r.URL.Query().Get("country"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[
			{"display_name": "Almaty, Almaty Region, Kazakhstan", "lat": "43.2380", "lon": "76.9453"},
			{"display_name": "Almaty, Kazakhstan", "lat": "43.25", "lon": "76.95"},
			{"display_name": "Astana, Kazakhstan", "lat": "bad", "lon": ""},
			{"display_name": ""}
		]`))
	}))
	defer srv.Close()

	country := &geo.Country{ID: uuid.New(), Code: "KZ", Name: "Kazakhstan"}
	cities, err := NewClient(testConfig(srv)).FetchCities(context.Background(), country)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	require.Len(t, cities, 2)
	assert.Equal(t, "Almaty", cities[0].Name)
	assert.Equal(t, country.ID, cities[0].CountryID)
	require.NotNil(t, cities[0].Latitude)
	assert.InDelta(t, 43.238, *cities[0].Latitude, 1e-9)
	assert.Equal(t, "Astana", cities[1].Name)
	assert.Nil(t, cities[1].Latitude)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := NewClient(testConfig(srv)).FetchCountries(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv)).FetchCities(context.Background(), &geo.Country{Name: "X"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimiter_SpacesRequests(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 100, BurstSize: 1, MinInterval: 20 * time.Millisecond, WaitTimeout: time.Second})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Allow(ctx))
	require.NoError(t, rl.Allow(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_WaitTimeout(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.01, BurstSize: 1, WaitTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, rl.Allow(ctx))
	var rlErr *RateLimitError
	assert.ErrorAs(t, rl.Allow(ctx), &rlErr)
}

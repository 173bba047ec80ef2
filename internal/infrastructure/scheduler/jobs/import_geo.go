// Package jobs contains the scheduled jobs run by the worker binary.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT GEO JOB
// ══════════════════════════════════════════════════════════════════════════════

// ImportGeoJobName is the scheduler key of ImportGeoJob.
const ImportGeoJobName = "import_geo"

// ReferenceSource provides countries and their cities. Implementations retry
// transient failures themselves.
type ReferenceSource interface {
	FetchCountries(ctx context.Context) (countries []*geo.Country, skipped int, err error)
	FetchCities(ctx context.Context, country *geo.Country) ([]*geo.City, error)
}

// ImportGeoConfig contains configuration for the import.
type ImportGeoConfig struct {
	// Concurrency bounds the countries whose cities are fetched at once.
	// The geocoder rate limit still serializes the requests themselves.
	Concurrency int

	// SkipCities imports countries only.
	SkipCities bool

	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
}

// DefaultImportGeoConfig returns sensible defaults.
func DefaultImportGeoConfig() ImportGeoConfig {
	return ImportGeoConfig{
		Concurrency: 4,
		Timeout:     6 * time.Hour,
	}
}

// ImportStats summarizes one run.
type ImportStats struct {
	RunID     string
	Countries int
	Cities    int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// ImportGeoJob refreshes countries and cities. Per-country failures are
// logged and counted; only a failure to list countries fails the run.
type ImportGeoJob struct {
	source ReferenceSource
	repo   geo.Repository
	events shared.EventPublisher
	logger *slog.Logger
	config ImportGeoConfig

	last atomic.Pointer[ImportStats]
}

// NewImportGeoJob creates the job.
func NewImportGeoJob(source ReferenceSource, repo geo.Repository, events shared.EventPublisher, logger *slog.Logger, config ImportGeoConfig) *ImportGeoJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &ImportGeoJob{
		source: source,
		repo:   repo,
		events: events,
		logger: logger.With("job", ImportGeoJobName),
		config: config,
	}
}

// Name returns the job name.
func (j *ImportGeoJob) Name() string {
	return ImportGeoJobName
}

// Description returns a human-readable description.
func (j *ImportGeoJob) Description() string {
	return "Imports countries from RestCountries and their cities from Nominatim"
}

// LastStats returns the summary of the latest finished run, or nil.
func (j *ImportGeoJob) LastStats() *ImportStats {
	return j.last.Load()
}

// Run executes one import.
func (j *ImportGeoJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	runID := uuid.NewString()
	j.logger.Info("import started", "run_id", runID)

	countries, skipped, err := j.source.FetchCountries(ctx)
	if err != nil {
		return fmt.Errorf("import geo: %w", err)
	}

	var (
		savedCountries int
		savedCities    atomic.Int64
		skippedTotal   atomic.Int64
		failed         atomic.Int64
	)
	skippedTotal.Add(int64(skipped))

	stored := make([]*geo.Country, 0, len(countries))
	for _, c := range countries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import geo: %w", err)
		}
		if err := j.repo.UpsertCountry(ctx, c); err != nil {
			failed.Add(1)
			j.logger.Error("save country failed", "code", c.Code, "error", err)
			continue
		}
		savedCountries++
		stored = append(stored, c)
	}

	if !j.config.SkipCities {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.config.Concurrency)

		for _, c := range stored {
			g.Go(func() error {
				cities, err := j.source.FetchCities(gctx, c)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					j.logger.Warn("no cities imported", "country", c.Code, "error", err)
					return nil
				}
				if len(cities) == 0 {
					skippedTotal.Add(1)
					j.logger.Debug("geocoder returned no cities", "country", c.Code)
					return nil
				}
				for _, city := range cities {
					if err := j.repo.UpsertCity(gctx, city); err != nil {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						failed.Add(1)
						j.logger.Error("save city failed", "country", c.Code, "city", city.Name, "error", err)
						continue
					}
					savedCities.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("import geo: %w", err)
		}
	}

	stats := &ImportStats{
		RunID:     runID,
		Countries: savedCountries,
		Cities:    int(savedCities.Load()),
		Skipped:   int(skippedTotal.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	j.last.Store(stats)

	j.logger.Info("import finished",
		"run_id", runID,
		"countries", stats.Countries,
		"cities", stats.Cities,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration.String(),
	)

	if j.events != nil {
		event := shared.NewGeoImportCompletedEvent(runID, stats.Countries, stats.Cities, stats.Skipped, stats.Failed, stats.Duration)
		if err := j.events.Publish(event); err != nil {
			j.logger.Warn("publish import event failed", "error", err)
		}
	}
	return nil
}

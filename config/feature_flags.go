package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
)

var ErrFeatureNotFound = errors.New("feature not found")

const (
	// FeatureStrictStepOrdering makes a submission require the previous step
	// to be recorded.
	FeatureStrictStepOrdering = "strict_step_ordering"

	// FeatureMonotonicStepProgress keeps a re-submitted earlier step from
	// lowering current_step.
	FeatureMonotonicStepProgress = "monotonic_step_progress"

	// FeatureGeoImportCities fetches cities after countries in the geo import.
	FeatureGeoImportCities = "geo_import_cities"
)

// Feature is one toggle with its current value.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// knownFeatures holds every flag with its default, sorted by name.
var knownFeatures = []Feature{
	{Name: FeatureGeoImportCities, Description: "Import cities for every country during the geo import", Enabled: true},
	{Name: FeatureMonotonicStepProgress, Description: "Never lower current_step when an earlier step is re-submitted"},
	{Name: FeatureStrictStepOrdering, Description: "Enforce the step transition table on submissions"},
}

// FeatureFlags is safe for concurrent use. A nil *FeatureFlags reports every
// flag as off.
type FeatureFlags struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

// LoadFeatureFlags applies FEATURE_<NAME> overrides to the defaults. A value
// strconv.ParseBool rejects keeps the default.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{enabled: make(map[string]bool, len(knownFeatures))}
	for _, f := range knownFeatures {
		on := f.Enabled
		if v, err := strconv.ParseBool(os.Getenv(EnvName(f.Name))); err == nil {
			on = v
		}
		ff.enabled[f.Name] = on
	}
	return ff
}

// EnvName maps a flag name to its override variable, e.g.
// geo.import-cities to FEATURE_GEO_IMPORT_CITIES.
func EnvName(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
}

func (ff *FeatureFlags) IsEnabled(name string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.enabled[name]
}

// Set flips a known flag at runtime.
func (ff *FeatureFlags) Set(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if _, ok := ff.enabled[name]; !ok {
		return ErrFeatureNotFound
	}
	ff.enabled[name] = enabled
	return nil
}

// All lists every flag, sorted by name.
func (ff *FeatureFlags) All() []Feature {
	out := make([]Feature, len(knownFeatures))
	for i, f := range knownFeatures {
		f.Enabled = ff.IsEnabled(f.Name)
		out[i] = f
	}
	return out
}

func (ff *FeatureFlags) StrictStepOrdering() bool {
	return ff.IsEnabled(FeatureStrictStepOrdering)
}

func (ff *FeatureFlags) MonotonicStepProgress() bool {
	return ff.IsEnabled(FeatureMonotonicStepProgress)
}

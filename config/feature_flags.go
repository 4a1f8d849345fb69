package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for optional parts of a run.
// Each flag can be flipped from the config file or a FEATURE_* variable.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// Memoise search results in Redis keyed by input fingerprint
	FeatureResultCache = "cache.results"

	// Store completed runs (postgres, or in memory when no database is set)
	FeatureRunPersistence = "persistence.runs"

	// Publish per-violation and per-run audit events
	FeatureAuditEvents = "audit.events"

	// Serve POST /api/v1/evaluate
	FeatureEvaluateAPI = "http.evaluate_api"
)

// NewFeatureFlags returns the flags at their default values.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature),
	}
	ff.initializeDefaults()
	return ff
}

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureResultCache] = &Feature{
		Name:        FeatureResultCache,
		Description: "Cache threshold search results in Redis",
		Enabled:     true,
	}

	ff.features[FeatureRunPersistence] = &Feature{
		Name:        FeatureRunPersistence,
		Description: "Persist cohort runs and per-student results",
		Enabled:     true,
	}

	ff.features[FeatureAuditEvents] = &Feature{
		Name:        FeatureAuditEvents,
		Description: "Publish consistency violation events",
		Enabled:     true,
	}

	ff.features[FeatureEvaluateAPI] = &Feature{
		Name:        FeatureEvaluateAPI,
		Description: "Expose single-student evaluation over HTTP",
		Enabled:     true,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false
// Example: FEATURE_CACHE_RESULTS=false
func (ff *FeatureFlags) loadFromEnvironment() {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "cache.results" -> "FEATURE_CACHE_RESULTS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// Set turns a feature on or off.
// Thread-safe for live updates.
func (ff *FeatureFlags) Set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// EnableFeature enables a feature.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.Set(featureName, true)
}

// DisableFeature disables a feature.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.Set(featureName, false)
}

// GetAllFeatures returns copies of all features ordered by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, v := range ff.features {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, threshold.DefaultBounds(), cfg.Engine.Bounds())
	assert.True(t, cfg.Engine.WithUniformInverse)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.True(t, cfg.Redis.Disabled)
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Features.IsEnabled(FeatureResultCache))
}

func TestLoadFile_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  min_grade: 50
  max_grade: 95
  with_uniform_inverse: false
redis:
  disabled: false
  result_ttl: 2h
features:
  audit.events: false
`), 0o600))

	t.Setenv("ENGINE_MAX_GRADE", "85")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, threshold.Bounds{Min: 50, Max: 85}, cfg.Engine.Bounds())
	assert.False(t, cfg.Engine.WithUniformInverse)
	assert.False(t, cfg.Redis.Disabled)
	assert.Equal(t, 2*time.Hour, cfg.Redis.ResultTTL)
	// untouched sections keep defaults
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.False(t, cfg.Features.IsEnabled(FeatureAuditEvents))
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Engine.MinGrade)
}

func TestLoadFile_UnknownFeature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  nope: true\n"), 0o600))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestLoadFile_FeatureFromEnvironment(t *testing.T) {
	t.Setenv("FEATURE_CACHE_RESULTS", "false")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.False(t, cfg.Features.IsEnabled(FeatureResultCache))
	assert.True(t, cfg.Features.IsEnabled(FeatureRunPersistence))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("ENGINE_MIN_GRADE", "95")
	t.Setenv("ENGINE_MAX_GRADE", "90")
	t.Setenv("ENGINE_CONCURRENCY", "0")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("HTTP_RATE_LIMIT_PER_MINUTE", "-1")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_MIN_GRADE must be below ENGINE_MAX_GRADE")
	assert.Contains(t, err.Error(), "ENGINE_CONCURRENCY must be positive")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
	assert.Contains(t, err.Error(), "HTTP_RATE_LIMIT_PER_MINUTE")
}

func TestValidate_ProductionNeedsDatabase(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	t.Setenv("FEATURE_PERSISTENCE_RUNS", "false")
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestDatabaseURLFromComponents(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/predictor?sslmode=disable", cfg.Database.URL)
}

func TestFeatureFlags(t *testing.T) {
	ff := NewFeatureFlags()
	assert.False(t, ff.IsEnabled("unknown"))

	require.NoError(t, ff.DisableFeature(FeatureEvaluateAPI))
	assert.False(t, ff.IsEnabled(FeatureEvaluateAPI))
	require.NoError(t, ff.EnableFeature(FeatureEvaluateAPI))
	assert.True(t, ff.IsEnabled(FeatureEvaluateAPI))

	assert.ErrorIs(t, ff.Set("unknown", true), ErrFeatureNotFound)

	all := ff.GetAllFeatures()
	require.Len(t, all, 4)
	assert.Equal(t, FeatureAuditEvents, all[0].Name)
	assert.Equal(t, "FEATURE_CACHE_RESULTS", featureNameToEnvKey(FeatureResultCache))
}

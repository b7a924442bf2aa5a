package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultSearchTerms, cfg.SearchTerms)
	assert.Equal(t, DefaultLocations, cfg.Locations)
	assert.Equal(t, []string{"linkedin", "indeed"}, cfg.SiteNames)
	assert.Equal(t, DefaultJobType, cfg.JobType)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.False(t, cfg.DryRun)
	assert.Nil(t, cfg.IsRemote)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SEARCH_TERMS", "data intern, ml intern")
	t.Setenv("LOCATIONS", "Rabat,Casablanca")
	t.Setenv("SITE_NAMES", " LinkedIn , www.Glassdoor ")
	t.Setenv("RESULTS_WANTED", "25")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("IS_REMOTE", "true")
	t.Setenv("HTTP_TIMEOUT", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, []string{"data intern", "ml intern"}, cfg.SearchTerms)
	assert.Equal(t, []string{"Rabat", "Casablanca"}, cfg.Locations)
	assert.Equal(t, []string{"linkedin", "glassdoor"}, cfg.SiteNames)
	assert.Equal(t, 25, cfg.ResultsWanted)
	assert.True(t, cfg.DryRun)
	require.NotNil(t, cfg.IsRemote)
	assert.True(t, *cfg.IsRemote)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestLoadRemoteTriState(t *testing.T) {
	t.Setenv("IS_REMOTE", "false")
	cfg := Load()
	require.NotNil(t, cfg.IsRemote)
	assert.False(t, *cfg.IsRemote)

	t.Setenv("IS_REMOTE", "none")
	cfg = Load()
	assert.Nil(t, cfg.IsRemote)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Load()
	cfg.SearchTerms = nil
	cfg.SiteNames = []string{"monster"}
	cfg.ResultsWanted = 0
	cfg.JobType = "gig"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "SEARCH_TERMS")
	assert.Contains(t, msg, "monster")
	assert.Contains(t, msg, "RESULTS_WANTED")
	assert.Contains(t, msg, "JOB_TYPE")
}

func TestValidateExperienceLevels(t *testing.T) {
	cfg := Load()
	cfg.ExperienceLevels = []string{"internship", "wizard"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wizard")
}

func TestSearchUnits(t *testing.T) {
	cfg := Load()
	cfg.SearchTerms = []string{"a", "b", "c"}
	cfg.Locations = []string{"x", "y"}
	assert.Equal(t, 6, cfg.SearchUnits())
}

func TestListenAddr(t *testing.T) {
	cfg := Load()
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 9090
	assert.Equal(t, "127.0.0.1:9090", cfg.ListenAddr())
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR_SECONDS", "45")
	assert.Equal(t, 45*time.Second, GetEnvDuration("TEST_DUR_SECONDS", time.Second))

	t.Setenv("TEST_DUR_UNITS", "2m")
	assert.Equal(t, 2*time.Minute, GetEnvDuration("TEST_DUR_UNITS", time.Second))

	t.Setenv("TEST_DUR_BAD", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("TEST_DUR_BAD", time.Second))

	assert.Equal(t, time.Second, GetEnvDuration("TEST_DUR_UNSET", time.Second))
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,,c")
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvStringSlice("TEST_SLICE", nil))

	t.Setenv("TEST_SLICE_EMPTY", " , ,")
	assert.Equal(t, []string{"fallback"}, GetEnvStringSlice("TEST_SLICE_EMPTY", []string{"fallback"}))
}

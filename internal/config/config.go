package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"internship-sync/tracker/internal/source"
)

// Config holds all configuration for the application. It is constructed once
// at startup and passed down explicitly; nothing reads it through globals.
type Config struct {
	// File paths
	DBPath    string
	RulesPath string

	// Search scope
	SearchTerms      []string
	Locations        []string
	SiteNames        []string
	JobType          string
	ExperienceLevels []string
	Country          string
	ResultsWanted    int
	HoursOld         int
	IsRemote         *bool

	// Pipeline behavior
	DryRun      bool
	WorkerCount int

	// Outbound HTTP
	HTTPTimeout  time.Duration
	RetryMax     int
	RetryBackoff time.Duration

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Log settings
	LogLevel zerolog.Level
}

// supported values, matching the site registry and the schema CHECK
// constraints.
var (
	validSites    = map[string]bool{"linkedin": true, "indeed": true, "glassdoor": true}
	validJobTypes = map[string]bool{"fulltime": true, "parttime": true, "internship": true, "contract": true}
	validLevels   = map[string]bool{
		"internship": true, "entry_level": true, "associate": true,
		"mid_senior": true, "director": true, "executive": true,
	}
)

// Load builds the configuration from the environment, reading a .env file
// first when present. The result is not validated; call Validate before use.
func Load() *Config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:           GetEnvString("DATABASE_PATH", DefaultDBPath),
		RulesPath:        GetEnvString("RULES_PATH", DefaultRulesPath),
		SearchTerms:      GetEnvStringSlice("SEARCH_TERMS", DefaultSearchTerms),
		Locations:        GetEnvStringSlice("LOCATIONS", DefaultLocations),
		SiteNames:        source.NormalizeSites(GetEnvStringSlice("SITE_NAMES", DefaultSiteNames)),
		JobType:          strings.ToLower(GetEnvString("JOB_TYPE", DefaultJobType)),
		ExperienceLevels: lowered(GetEnvStringSlice("EXPERIENCE_LEVELS", DefaultExperienceLevels)),
		Country:          GetEnvString("COUNTRY", DefaultCountry),
		ResultsWanted:    GetEnvInt("RESULTS_WANTED", DefaultResultsWanted),
		HoursOld:         GetEnvInt("HOURS_OLD", DefaultHoursOld),
		DryRun:           GetEnvBool("DRY_RUN", false),
		WorkerCount:      GetEnvInt("WORKER_COUNT", DefaultWorkerCount),
		HTTPTimeout:      GetEnvDuration("HTTP_TIMEOUT", DefaultHTTPTimeoutSeconds*time.Second),
		RetryMax:         GetEnvInt("RETRY_MAX", DefaultRetryMax),
		RetryBackoff:     GetEnvDuration("RETRY_BACKOFF", DefaultRetryBackoffMS*time.Millisecond),
		ServerHost:       GetEnvString("TRACKER_HOST", DefaultServerHost),
		ServerPort:       GetEnvInt("TRACKER_PORT", DefaultServerPort),
		APIKey:           GetEnvString("TRACKER_API_KEY", ""),
		LogLevel:         GetEnvLogLevel("LOG_LEVEL", zerolog.InfoLevel),
	}

	// IS_REMOTE is tri-state: unset means "any".
	if raw := strings.ToLower(strings.TrimSpace(GetEnvString("IS_REMOTE", ""))); raw != "" && raw != "none" {
		remote := raw == "true" || raw == "1"
		cfg.IsRemote = &remote
	}

	return cfg
}

// Validate checks every required setting and reports all problems at once.
// A non-nil error means the run must not start.
func (c *Config) Validate() error {
	var errs []string

	if len(c.SearchTerms) == 0 {
		errs = append(errs, "SEARCH_TERMS cannot be empty")
	}
	if len(c.Locations) == 0 {
		errs = append(errs, "LOCATIONS cannot be empty")
	}
	if len(c.SiteNames) == 0 {
		errs = append(errs, "SITE_NAMES cannot be empty")
	}
	for _, site := range c.SiteNames {
		if !validSites[site] {
			errs = append(errs, fmt.Sprintf("unsupported site %q (valid: linkedin, indeed, glassdoor)", site))
		}
	}
	if !validJobTypes[c.JobType] {
		errs = append(errs, fmt.Sprintf("invalid JOB_TYPE %q", c.JobType))
	}
	for _, level := range c.ExperienceLevels {
		if !validLevels[level] {
			errs = append(errs, fmt.Sprintf("invalid experience level %q", level))
		}
	}
	if c.ResultsWanted <= 0 {
		errs = append(errs, "RESULTS_WANTED must be greater than 0")
	}
	if c.HoursOld < 0 {
		errs = append(errs, "HOURS_OLD must be 0 or greater")
	}
	if c.DBPath == "" {
		errs = append(errs, "DATABASE_PATH cannot be empty")
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, "WORKER_COUNT must be greater than 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SearchUnits returns the cross product of search terms and locations.
func (c *Config) SearchUnits() int {
	return len(c.SearchTerms) * len(c.Locations)
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

package config

// Constants defining default values for application configuration
const (
	DefaultDBPath    = "./data/internships.db"
	DefaultRulesPath = ""

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWorkerCount   = 4
	DefaultResultsWanted = 100
	DefaultHoursOld      = 0 // 0 means no recency filter
	DefaultJobType       = "internship"
	DefaultCountry       = "Morocco"

	DefaultHTTPTimeoutSeconds = 15
	DefaultRetryMax           = 2
	DefaultRetryBackoffMS     = 500

	DefaultLogLevel = "info"
)

// DefaultSearchTerms and friends mirror the scraper's out-of-the-box search
// scope; all are overridable through the environment.
var (
	DefaultSearchTerms      = []string{"Software Engineer Intern"}
	DefaultLocations        = []string{"Morocco"}
	DefaultSiteNames        = []string{"linkedin", "indeed"}
	DefaultExperienceLevels = []string{"internship", "entry_level"}
)

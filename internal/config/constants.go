package config

import "time"

// Constants defining default values for application configuration
const (
	DefaultDBPath        = "./jobs.db"
	DefaultListingsCSV   = "./listings.csv"
	DefaultSourceKind    = "html"
	DefaultSourceURL     = "https://www.work.ua/jobs-junior/"
	DefaultOpenAIModel   = "gpt-5-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultTelegramURL   = "https://api.telegram.org"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWindow      = "10-20" // Hours [start, end) in DefaultTimeZone
	DefaultTimeZone    = "Europe/Kyiv"
	DefaultTipSchedule = "30 10,18 * * *"

	DefaultCooldown      = time.Hour
	DefaultTestCooldown  = 30 * time.Second
	DefaultInterval      = 60 * time.Second
	DefaultRecoveryDelay = 10 * time.Second
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultProbeRPS      = 1.0

	DefaultImagePath    = "vacancy.jpg"
	DefaultTipImagePath = "tips.jpg"

	DefaultLogLevel = "info"
)

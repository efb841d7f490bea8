package config

import "time"

// Server defaults
const (
	DefaultPort            = "8080"
	DefaultMaxStorageGB    = 1
	DefaultMaxMemoryMB     = 48
	DefaultDataDir         = "./data"
	DefaultStaticDir       = "./web/dist"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Background task intervals
const (
	BadgerGCInterval       = 10 * time.Minute
	BadgerGCDiscardRatio   = 0.5
	CacheSweepInterval     = 5 * time.Minute
	StorageCheckInterval   = 5 * time.Minute
	TaskFailureThreshold   = 3
	DefaultScrapeInterval  = 5 * time.Minute
	DefaultScrapeTimeout   = 10 * time.Second
	ScrapeInsertTimeout    = 5 * time.Second
	BreakerConsecutiveFail = 5
	BreakerCooldown        = 2 * time.Minute
)

// Scraper target
const (
	DefaultScrapeURL = "https://www.techlib.cz/cs/"
	DefaultSelector  = "div.panel-body.text-center.lead span"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Prediction defaults
const (
	DefaultLookbackWeeks = 8
	DefaultStartOfDay    = "06:00"
	DefaultEndOfDay      = "24:00"
	DefaultDailyDays     = 365
)

// Request timeouts
const (
	PredictTimeout = 10 * time.Second
	GraphQLTimeout = 15 * time.Second
	ExportTimeout  = 2 * time.Minute
	HealthTimeout  = 3 * time.Second
	StatsTimeout   = 5 * time.Second
)

// Import limits
const (
	ImportBatchSize    = 5000
	DefaultMaxImportMB = 32
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

package config

import "time"

// Default runtime limits and guardrails for the dashboard server. They are
// referenced by internal/runtime and internal/workbooks and can be overridden
// through Config.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxCachedWorkbooks    = 4
	DefaultMaxSessions           = 64

	// Payload and row limits
	DefaultMaxUploadBytes  = 25 << 20 // 25MB
	DefaultMaxPayloadBytes = 128 * 1024
	DefaultPreviewRowLimit = 50
	DefaultMaxPageSize     = 500
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultShutdownTimeout       = 10 * time.Second

	// Cache lifetimes
	DefaultWorkbookIdleTTL       = 30 * time.Minute
	DefaultWorkbookCleanupPeriod = time.Minute
	DefaultSessionIdleTTL        = 2 * time.Hour
)

const (
	DefaultDataDir  = "."
	DefaultHTTPAddr = ":8080"
	// DefaultModel sizes the text summary returned by render_view.
	DefaultModel = "gpt-4"
)

// DefaultSourceHints are the filename substrings preferred during discovery:
// management, plant and consumer unit.
var DefaultSourceHints = []string{"gest", "usina", "uc"}

// SupportedExtensions lists the workbook formats the loader accepts.
var SupportedExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm"}

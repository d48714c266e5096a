package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vinodismyname/sheetboard/config"
)

// Limits captures the concurrency and workbook guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxCachedWorkbooks    int
	MaxSessions           int

	// Payload and row bounds
	MaxUploadBytes  int64
	MaxPayloadBytes int
	PreviewRowLimit int
	MaxPageSize     int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, maxCachedWorkbooks int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxCachedWorkbooks <= 0 {
		maxCachedWorkbooks = config.DefaultMaxCachedWorkbooks
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxCachedWorkbooks:    maxCachedWorkbooks,
		MaxSessions:           config.DefaultMaxSessions,
		MaxUploadBytes:        config.DefaultMaxUploadBytes,
		MaxPayloadBytes:       config.DefaultMaxPayloadBytes,
		PreviewRowLimit:       config.DefaultPreviewRowLimit,
		MaxPageSize:           config.DefaultMaxPageSize,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
	}
}

// LimitsFromConfig applies configured overrides on top of the defaults.
func LimitsFromConfig(c config.LimitsConfig) Limits {
	l := NewLimits(c.MaxConcurrentRequests, c.MaxCachedWorkbooks)
	if c.MaxSessions > 0 {
		l.MaxSessions = c.MaxSessions
	}
	if c.MaxUploadBytes > 0 {
		l.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.OperationTimeout > 0 {
		l.OperationTimeout = c.OperationTimeout
	}
	return l
}

// Controller coordinates runtime semaphores for request and workbook guardrails.
type Controller struct {
	limits            Limits
	requestSemaphore  *semaphore.Weighted
	workbookSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:            limits,
		requestSemaphore:  semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbookSemaphore: semaphore.NewWeighted(int64(limits.MaxCachedWorkbooks)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireWorkbook reserves a cached workbook slot.
func (c *Controller) AcquireWorkbook(ctx context.Context) error {
	return c.workbookSemaphore.Acquire(ctx, 1)
}

// ReleaseWorkbook frees a cached workbook slot.
func (c *Controller) ReleaseWorkbook() {
	c.workbookSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}

// acquireBounded waits at most AcquireRequestTimeout for a request slot.
func (c *Controller) acquireBounded(ctx context.Context) error {
	if c.limits.AcquireRequestTimeout <= 0 {
		return c.AcquireRequest(ctx)
	}
	acquireCtx, cancel := context.WithTimeout(ctx, c.limits.AcquireRequestTimeout)
	defer cancel()
	return c.AcquireRequest(acquireCtx)
}

// withOperationTimeout bounds a call by OperationTimeout when configured.
func (c *Controller) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.limits.OperationTimeout > 0 {
		return context.WithTimeout(ctx, c.limits.OperationTimeout)
	}
	return ctx, func() {}
}

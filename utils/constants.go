package utils

import (
	"time"
)

// Dispatch policy constants
const (
	// DefaultQueueAttempts is the number of delivery attempts per job
	DefaultQueueAttempts = 3

	// DefaultQueueBackoffBase is the first retry delay; later delays double
	DefaultQueueBackoffBase = time.Second

	// DefaultQueueVisibilityTimeout bounds how long a claimed job may stay unsettled
	DefaultQueueVisibilityTimeout = 5 * time.Minute

	// MaxManualRetries caps explicit retry calls per message regardless of rate limits
	MaxManualRetries = 10
)

// Rate limit constants
const (
	RetryLimitPerMessage   = 5
	RetryLimitPerTenant    = 50
	ScheduleLimitPerTenant = 20
	RateLimitWindow        = time.Hour
)

// Scheduler constants
const (
	DefaultSchedulerBatchSize = 100
	DefaultSchedulerSpec      = "@every 1m"
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type contextKey string

// Request-scoped context keys set by HTTP handlers
const (
	RequestIDKey contextKey = "request_id"
	EndpointKey  contextKey = "endpoint"
	IPAddressKey contextKey = "ip_address"
)

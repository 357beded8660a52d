package domain

import "time"

const (
	DefaultProtocolVersion = "2025-11-25"

	// Aggregate catalog loads are a single fetch per request; they get a hard
	// timeout rather than a breaker.
	DefaultCatalogTimeout = 5 * time.Second

	DefaultToolCallTimeout     = 30 * time.Second
	DefaultResourceReadTimeout = 15 * time.Second
	DefaultPromptGetTimeout    = 10 * time.Second

	DefaultBreakerErrorRate  = 0.5
	DefaultBreakerMinVolume  = 10
	DefaultBreakerResetDelay = 30 * time.Second

	DefaultCacheTTL       = 5 * time.Minute
	DefaultCacheMaxSize   = 1024
	DefaultCacheSweepTick = time.Minute

	DefaultListenAddress  = "0.0.0.0:8080"
	DefaultMetricsAddress = "0.0.0.0:9090"
)

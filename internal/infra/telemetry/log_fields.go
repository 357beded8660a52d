package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldBackendID  = "backendId"
	FieldPresetSlug = "presetSlug"
	FieldOwnerID    = "ownerId"
	FieldCategory   = "category"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
)

const (
	EventCatalogTimeout  = "catalog_timeout"
	EventBindingSkipped  = "binding_skipped"
	EventCircuitOpen     = "circuit_open"
	EventCircuitClosed   = "circuit_closed"
	EventServerBuilt     = "server_built"
	EventServerEvicted   = "server_evicted"
	EventRequestRejected = "request_rejected"
	EventToolCallFailed  = "tool_call_failed"
	EventResourceSkipped = "resource_skipped"
	EventPresetCacheMiss = "preset_cache_miss"
	EventConfigReloaded  = "config_reloaded"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func BackendIDField(backendID string) zap.Field {
	return zap.String(FieldBackendID, backendID)
}

func PresetSlugField(slug string) zap.Field {
	return zap.String(FieldPresetSlug, slug)
}

func OwnerIDField(ownerID string) zap.Field {
	return zap.String(FieldOwnerID, ownerID)
}

func CategoryField(category string) zap.Field {
	return zap.String(FieldCategory, category)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

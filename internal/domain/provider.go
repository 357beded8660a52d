package domain

import "context"

// BackendProvider exposes the capabilities of independently managed backend
// tool connections, keyed by opaque server ids. Connection lifecycle is owned
// elsewhere; the gateway only calls through this interface.
type BackendProvider interface {
	// ListTools returns the aggregate tool catalog across every connected
	// backend.
	ListTools(ctx context.Context) ([]CatalogTool, error)
	CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*ToolCallResult, error)
	ListResources(ctx context.Context, serverID string) ([]ResourceDefinition, error)
	ReadResource(ctx context.Context, serverID, uri string) ([]ResourceContent, error)
	ListPrompts(ctx context.Context, serverID string) ([]PromptDefinition, error)
	GetPrompt(ctx context.Context, serverID, name string, args map[string]string) (*PromptResult, error)
	ListRoots(ctx context.Context, serverID string) ([]RootDefinition, error)
}

// PresetRepository is the persistence contract the gateway depends on.
// Storage mechanics live behind it.
type PresetRepository interface {
	GetBySlug(ctx context.Context, ownerID, slug string) (*Preset, error)
	Save(ctx context.Context, preset *Preset) error
	Delete(ctx context.Context, ownerID, slug string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Preset, error)
}

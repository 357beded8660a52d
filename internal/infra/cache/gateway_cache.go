package cache

import (
	"fmt"

	"mcpgw/internal/domain"
)

// GatewayCache scopes the generic TTL cache to the two artifacts the gateway
// caches per preset: the preset config record and the filtered tool catalog.
// Keys carry the owner id because slugs are only unique per owner.
type GatewayCache struct {
	cache *TTLCache
}

func NewGatewayCache(cache *TTLCache) *GatewayCache {
	return &GatewayCache{cache: cache}
}

func presetConfigKey(ownerID, slug string) string {
	return fmt.Sprintf("gateway:preset:%s:%s:config", ownerID, slug)
}

func presetToolsKey(ownerID, slug string) string {
	return fmt.Sprintf("gateway:preset:%s:%s:tools", ownerID, slug)
}

// GetPresetConfig returns the cached preset record for an owner's slug.
func (g *GatewayCache) GetPresetConfig(ownerID, slug string) (domain.PresetRecord, bool) {
	value, ok := g.cache.Get(presetConfigKey(ownerID, slug))
	if !ok {
		return domain.PresetRecord{}, false
	}
	record, ok := value.(domain.PresetRecord)
	return record, ok
}

func (g *GatewayCache) SetPresetConfig(ownerID, slug string, record domain.PresetRecord) {
	g.cache.Set(presetConfigKey(ownerID, slug), record)
}

// GetPresetTools returns the cached filtered tool set for an owner's slug,
// keyed by composite tool id.
func (g *GatewayCache) GetPresetTools(ownerID, slug string) (map[string]domain.ToolDefinition, bool) {
	value, ok := g.cache.Get(presetToolsKey(ownerID, slug))
	if !ok {
		return nil, false
	}
	tools, ok := value.(map[string]domain.ToolDefinition)
	return tools, ok
}

func (g *GatewayCache) SetPresetTools(ownerID, slug string, tools map[string]domain.ToolDefinition) {
	g.cache.Set(presetToolsKey(ownerID, slug), tools)
}

// InvalidatePreset drops every cached artifact under one owner's preset slug
// and leaves all other entries untouched.
func (g *GatewayCache) InvalidatePreset(ownerID, slug string) int {
	return g.cache.DeletePattern(fmt.Sprintf("gateway:preset:%s:%s:*", ownerID, slug))
}

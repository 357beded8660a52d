package mcpserver

import "context"

// Status is an operational summary of one protocol server.
type Status struct {
	Enabled         bool   `json:"enabled"`
	ServerName      string `json:"serverName"`
	ProtocolVersion string `json:"protocolVersion"`
	ToolCount       int    `json:"toolCount"`
	ResourceCount   int    `json:"resourceCount"`
	PromptCount     int    `json:"promptCount"`
	RootCount       int    `json:"rootCount"`
	BackendCount    int    `json:"backendCount"`
}

// Status summarizes what the server currently exposes. BackendCount counts
// backends actually contributing capabilities, not backends configured.
func (s *PresetServer) Status(ctx context.Context) Status {
	status := Status{
		ServerName:      s.name,
		ProtocolVersion: ProtocolVersion,
	}
	s.mu.RLock()
	status.Enabled = s.initialized
	s.mu.RUnlock()

	backends := map[string]struct{}{}
	tools := s.snapshotTools()
	status.ToolCount = len(tools)
	for _, tool := range tools {
		backends[tool.BackendID] = struct{}{}
	}

	resources := s.gateway.PresetResources(ctx, s.preset)
	status.ResourceCount = len(resources)
	for _, resource := range resources {
		backends[resource.BackendID] = struct{}{}
	}

	prompts := s.gateway.PresetPrompts(ctx, s.preset)
	status.PromptCount = len(prompts)
	for _, prompt := range prompts {
		backends[prompt.BackendID] = struct{}{}
	}

	roots := s.gateway.PresetRoots(ctx, s.preset)
	status.RootCount = len(roots)
	for _, root := range roots {
		backends[root.BackendID] = struct{}{}
	}

	status.BackendCount = len(backends)
	return status
}

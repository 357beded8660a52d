// Package backend adapts established protocol client sessions to the
// provider contract the gateway calls. Session lifecycle (connect,
// reconnect, teardown) is owned by whoever registers them.
package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/telemetry"
)

// SessionProvider implements domain.BackendProvider over registered client
// sessions, keyed by opaque backend server id.
type SessionProvider struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*mcp.ClientSession
	names    map[string]string
	roots    map[string][]domain.RootDefinition
}

func NewSessionProvider(logger *zap.Logger) *SessionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionProvider{
		logger:   logger.Named("backend"),
		sessions: make(map[string]*mcp.ClientSession),
		names:    make(map[string]string),
		roots:    make(map[string][]domain.RootDefinition),
	}
}

// Register makes a connected session available under a backend server id.
// Re-registering replaces the previous session.
func (p *SessionProvider) Register(serverID, displayName string, session *mcp.ClientSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[serverID] = session
	p.names[serverID] = displayName
}

// Unregister removes a backend. In-flight calls against its session finish
// on their own.
func (p *SessionProvider) Unregister(serverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, serverID)
	delete(p.names, serverID)
	delete(p.roots, serverID)
}

// SetRoots declares the filesystem roots a backend operates over. Roots are
// client-declared in the protocol, so they are configured here rather than
// queried from the session.
func (p *SessionProvider) SetRoots(serverID string, roots []domain.RootDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots[serverID] = append([]domain.RootDefinition(nil), roots...)
}

func (p *SessionProvider) session(serverID string) (*mcp.ClientSession, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	session, ok := p.sessions[serverID]
	if !ok || session == nil {
		return nil, "", domain.E(domain.CodeUnavailable, "backend.session",
			fmt.Sprintf("backend %q is not connected", serverID), nil)
	}
	return session, p.names[serverID], nil
}

func (p *SessionProvider) backendIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListTools returns the aggregate tool catalog across every registered
// backend. A backend that fails to list is logged and skipped so one broken
// connection does not hide every other backend's tools; a cancelled or
// timed-out context aborts the whole load.
func (p *SessionProvider) ListTools(ctx context.Context) ([]domain.CatalogTool, error) {
	var catalog []domain.CatalogTool
	for _, serverID := range p.backendIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		session, name, err := p.session(serverID)
		if err != nil {
			continue
		}
		result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("backend tool listing failed",
				telemetry.EventField(telemetry.EventBindingSkipped),
				telemetry.BackendIDField(serverID),
				zap.Error(err),
			)
			continue
		}
		for _, tool := range result.Tools {
			if tool == nil || tool.Name == "" {
				continue
			}
			entry := domain.CatalogTool{
				BackendID:   serverID,
				BackendName: name,
				Name:        tool.Name,
				Description: tool.Description,
			}
			if tool.InputSchema != nil {
				if raw, err := json.Marshal(tool.InputSchema); err == nil {
					entry.InputSchema = raw
				}
			}
			catalog = append(catalog, entry)
		}
	}
	return catalog, nil
}

func (p *SessionProvider) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*domain.ToolCallResult, error) {
	session, _, err := p.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, err
	}
	return toCallResult(result)
}

// toCallResult reshapes a wire tool result into the gateway's neutral form,
// preserving the {content: [...]} structure.
func toCallResult(result *mcp.CallToolResult) (*domain.ToolCallResult, error) {
	if result == nil {
		return &domain.ToolCallResult{Raw: ""}, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	var shaped map[string]any
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return &domain.ToolCallResult{Raw: shaped, IsError: result.IsError}, nil
}

func (p *SessionProvider) ListResources(ctx context.Context, serverID string) ([]domain.ResourceDefinition, error) {
	session, name, err := p.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return nil, err
	}
	resources := make([]domain.ResourceDefinition, 0, len(result.Resources))
	for _, resource := range result.Resources {
		if resource == nil {
			continue
		}
		resources = append(resources, domain.ResourceDefinition{
			URI:         resource.URI,
			Name:        resource.Name,
			Description: resource.Description,
			MIMEType:    resource.MIMEType,
			BackendID:   serverID,
			BackendName: name,
		})
	}
	return resources, nil
}

func (p *SessionProvider) ReadResource(ctx context.Context, serverID, uri string) ([]domain.ResourceContent, error) {
	session, _, err := p.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	contents := make([]domain.ResourceContent, 0, len(result.Contents))
	for _, entry := range result.Contents {
		if entry == nil {
			continue
		}
		content := domain.ResourceContent{
			URI:      entry.URI,
			MIMEType: entry.MIMEType,
			Text:     entry.Text,
		}
		if len(entry.Blob) > 0 {
			content.Blob = base64.StdEncoding.EncodeToString(entry.Blob)
		}
		contents = append(contents, content)
	}
	return contents, nil
}

func (p *SessionProvider) ListPrompts(ctx context.Context, serverID string) ([]domain.PromptDefinition, error) {
	session, name, err := p.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return nil, err
	}
	prompts := make([]domain.PromptDefinition, 0, len(result.Prompts))
	for _, prompt := range result.Prompts {
		if prompt == nil {
			continue
		}
		definition := domain.PromptDefinition{
			Name:        prompt.Name,
			Description: prompt.Description,
			BackendID:   serverID,
			BackendName: name,
		}
		for _, arg := range prompt.Arguments {
			if arg == nil {
				continue
			}
			definition.Arguments = append(definition.Arguments, domain.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
				Required:    arg.Required,
			})
		}
		prompts = append(prompts, definition)
	}
	return prompts, nil
}

func (p *SessionProvider) GetPrompt(ctx context.Context, serverID, name string, args map[string]string) (*domain.PromptResult, error) {
	session, _, err := p.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	out := &domain.PromptResult{Description: result.Description}
	for _, message := range result.Messages {
		if message == nil {
			continue
		}
		content, err := json.Marshal(message.Content)
		if err != nil {
			return nil, fmt.Errorf("encode prompt content: %w", err)
		}
		out.Messages = append(out.Messages, domain.PromptMessage{
			Role:    string(message.Role),
			Content: content,
		})
	}
	return out, nil
}

// ListRoots returns the configured roots for a backend.
func (p *SessionProvider) ListRoots(_ context.Context, serverID string) ([]domain.RootDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.sessions[serverID]; !ok {
		return nil, domain.E(domain.CodeUnavailable, "backend.listRoots",
			fmt.Sprintf("backend %q is not connected", serverID), nil)
	}
	return append([]domain.RootDefinition(nil), p.roots[serverID]...), nil
}

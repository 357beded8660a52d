// Package mcpserver hosts one logical protocol server per (owner, preset)
// pair. Handlers translate between the gateway's typed capability model and
// the wire-level protocol shapes.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/gateway"
	"mcpgw/internal/infra/telemetry"
)

// ProtocolVersion is the protocol revision this server speaks.
const ProtocolVersion = domain.DefaultProtocolVersion

// Protocol method names.
const (
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodResourcesList         = "resources/list"
	MethodResourcesRead         = "resources/read"
	MethodResourceTemplatesList = "resources/templates/list"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"
	MethodSamplingCreateMessage = "sampling/createMessage"
	MethodElicitationCreate     = "elicitation/create"
	MethodRootsList             = "roots/list"
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Options struct {
	Name        string
	Preset      *domain.Preset
	Sampling    domain.SamplingHandler
	Elicitation domain.ElicitationHandler

	// SchemeRoutes maps a resource URI scheme to the backend server that
	// owns it. Unrouted schemes are an explicit error, never a guess.
	SchemeRoutes map[string]string

	Logger *zap.Logger
}

// PresetServer serves the protocol methods for one (owner, preset) scope.
// A nil preset means an empty capability set.
type PresetServer struct {
	gateway *gateway.Service
	preset  *domain.Preset
	name    string

	sampling     domain.SamplingHandler
	elicitation  domain.ElicitationHandler
	schemeRoutes map[string]string
	logger       *zap.Logger

	mu          sync.RWMutex
	initialized bool
	tools       map[string]domain.ToolDefinition
	handlers    map[string]handlerFunc
}

func New(svc *gateway.Service, opts Options) *PresetServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresetServer{
		gateway:      svc,
		preset:       opts.Preset,
		name:         opts.Name,
		sampling:     opts.Sampling,
		elicitation:  opts.Elicitation,
		schemeRoutes: opts.SchemeRoutes,
		logger:       logger.Named("mcpserver"),
		tools:        map[string]domain.ToolDefinition{},
	}
}

// Initialize loads the preset's filtered tool set and registers one handler
// per protocol method. Must be called before Handle.
func (s *PresetServer) Initialize(ctx context.Context) error {
	tools, err := s.gateway.PresetTools(ctx, s.preset)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
	s.handlers = map[string]handlerFunc{
		MethodToolsList:             s.handleToolsList,
		MethodToolsCall:             s.handleToolsCall,
		MethodResourcesList:         s.handleResourcesList,
		MethodResourcesRead:         s.handleResourcesRead,
		MethodResourceTemplatesList: s.handleResourceTemplates,
		MethodPromptsList:           s.handlePromptsList,
		MethodPromptsGet:            s.handlePromptsGet,
		MethodSamplingCreateMessage: s.handleSamplingCreate,
		MethodElicitationCreate:     s.handleElicitationCreate,
		MethodRootsList:             s.handleRootsList,
	}
	s.initialized = true
	s.logger.Info("protocol server initialized",
		telemetry.EventField(telemetry.EventServerBuilt),
		zap.String("server", s.name),
		zap.Int("tools", len(tools)),
	)
	return nil
}

// Handle dispatches one protocol request to its method handler.
func (s *PresetServer) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	s.mu.RLock()
	initialized := s.initialized
	handler, ok := s.handlers[method]
	s.mu.RUnlock()

	if !initialized {
		return nil, &domain.ProtocolError{Code: domain.ErrCodeInternal, Message: "server not initialized"}
	}
	if !ok {
		return nil, &domain.ProtocolError{
			Code:    domain.ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
	return handler(ctx, params)
}

func (s *PresetServer) snapshotTools() []domain.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]domain.ToolDefinition, 0, len(s.tools))
	for _, tool := range s.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].CompositeID < tools[j].CompositeID })
	return tools
}

func (s *PresetServer) lookupTool(compositeID string) (domain.ToolDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tool, ok := s.tools[compositeID]
	return tool, ok
}

func (s *PresetServer) handleToolsList(context.Context, json.RawMessage) (any, error) {
	tools := s.snapshotTools()
	out := toolsListResult{Tools: make([]wireTool, 0, len(tools))}
	for _, tool := range tools {
		out.Tools = append(out.Tools, toolToWire(tool))
	}
	return out, nil
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *PresetServer) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var req toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return textResult("invalid tools/call parameters", true), nil
		}
	}
	if req.Name == "" {
		return textResult("tool name is required", true), nil
	}
	if _, ok := s.lookupTool(req.Name); !ok {
		return textResult(fmt.Sprintf("unknown tool: %s", req.Name), true), nil
	}

	backendServerID, toolName, err := domain.SplitToolID(req.Name)
	if err != nil {
		return textResult(fmt.Sprintf("malformed tool id: %s", req.Name), true), nil
	}

	result, err := s.gateway.ExecuteToolCall(ctx, backendServerID, toolName, req.Arguments)
	if err != nil {
		// Backend and breaker failures stay inside the protocol session.
		return textResult(err.Error(), true), nil
	}
	return normalizeCallResult(result), nil
}

func (s *PresetServer) handleResourcesList(ctx context.Context, _ json.RawMessage) (any, error) {
	resources := s.gateway.PresetResources(ctx, s.preset)
	out := resourcesListResult{Resources: make([]wireResource, 0, len(resources))}
	for _, resource := range resources {
		out.Resources = append(out.Resources, wireResource{
			URI:         resource.URI,
			Name:        resource.Name,
			Description: resource.Description,
			MIMEType:    resource.MIMEType,
		})
	}
	return out, nil
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *PresetServer) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var req resourceReadParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return resourceReadResult{Contents: []domain.ResourceContent{}, IsError: true}, nil
		}
	}
	if req.URI == "" {
		return resourceReadResult{Contents: []domain.ResourceContent{}, IsError: true}, nil
	}

	backendServerID, err := s.routeResource(req.URI)
	if err != nil {
		s.logger.Warn("resource route unresolved", zap.String("uri", req.URI), zap.Error(err))
		return resourceReadResult{Contents: []domain.ResourceContent{}, IsError: true}, nil
	}

	contents, err := s.gateway.ReadResource(ctx, backendServerID, req.URI)
	if err != nil {
		return resourceReadResult{Contents: []domain.ResourceContent{}, IsError: true}, nil
	}
	return resourceReadResult{Contents: contents}, nil
}

// routeResource resolves which backend owns a URI from its scheme.
func (s *PresetServer) routeResource(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" {
		return "", domain.E(domain.CodeInvalidArgument, "mcpserver.routeResource",
			fmt.Sprintf("resource uri %q has no scheme", uri), domain.ErrAmbiguousResourceRoute)
	}
	backendServerID, ok := s.schemeRoutes[parsed.Scheme]
	if !ok {
		return "", domain.E(domain.CodeInvalidArgument, "mcpserver.routeResource",
			fmt.Sprintf("no backend route for scheme %q", parsed.Scheme), domain.ErrAmbiguousResourceRoute)
	}
	return backendServerID, nil
}

func (s *PresetServer) handleResourceTemplates(context.Context, json.RawMessage) (any, error) {
	return resourceTemplatesResult{ResourceTemplates: []any{}}, nil
}

func (s *PresetServer) handlePromptsList(ctx context.Context, _ json.RawMessage) (any, error) {
	prompts := s.gateway.PresetPrompts(ctx, s.preset)
	out := promptsListResult{Prompts: make([]wirePrompt, 0, len(prompts))}
	for _, prompt := range prompts {
		out.Prompts = append(out.Prompts, wirePrompt{
			Name:        domain.JoinToolID(prompt.BackendID, prompt.Name),
			Description: prompt.Description,
			Arguments:   prompt.Arguments,
		})
	}
	return out, nil
}

type promptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *PresetServer) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, error) {
	var req promptGetParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return promptGetResult{Messages: []domain.PromptMessage{}, IsError: true}, nil
		}
	}
	if req.Name == "" {
		return promptGetResult{Messages: []domain.PromptMessage{}, IsError: true}, nil
	}
	backendServerID, promptName, err := domain.SplitToolID(req.Name)
	if err != nil {
		return promptGetResult{Messages: []domain.PromptMessage{}, IsError: true}, nil
	}

	result, err := s.gateway.GetPrompt(ctx, backendServerID, promptName, req.Arguments)
	if err != nil || result == nil {
		return promptGetResult{Messages: []domain.PromptMessage{}, IsError: true}, nil
	}
	return promptGetResult{Description: result.Description, Messages: result.Messages}, nil
}

func (s *PresetServer) handleSamplingCreate(ctx context.Context, params json.RawMessage) (any, error) {
	var req domain.SamplingRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &domain.ProtocolError{Code: domain.ErrCodeInvalidParams, Message: "invalid sampling parameters"}
		}
	}
	if err := req.Validate(); err != nil {
		return nil, &domain.ProtocolError{Code: domain.ErrCodeInvalidParams, Message: err.Error()}
	}
	if s.sampling == nil {
		return nil, &domain.ProtocolError{Code: domain.ErrCodeInternal, Message: "sampling is not configured"}
	}
	return s.sampling.CreateMessage(ctx, &req)
}

func (s *PresetServer) handleElicitationCreate(ctx context.Context, params json.RawMessage) (any, error) {
	var req domain.ElicitationRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &domain.ProtocolError{Code: domain.ErrCodeInvalidParams, Message: "invalid elicitation parameters"}
		}
	}
	if err := req.Validate(); err != nil {
		return nil, &domain.ProtocolError{Code: domain.ErrCodeInvalidParams, Message: err.Error()}
	}
	if s.elicitation == nil {
		return nil, &domain.ProtocolError{Code: domain.ErrCodeInternal, Message: "elicitation is not configured"}
	}
	return s.elicitation.Elicit(ctx, &req)
}

func (s *PresetServer) handleRootsList(ctx context.Context, _ json.RawMessage) (any, error) {
	roots := s.gateway.PresetRoots(ctx, s.preset)
	out := rootsListResult{Roots: make([]wireRoot, 0, len(roots))}
	for _, root := range roots {
		out.Roots = append(out.Roots, wireRoot{URI: root.URI, Name: root.Name})
	}
	return out, nil
}

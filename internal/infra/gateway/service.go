// Package gateway applies preset filtering over the aggregate backend
// catalog and wraps every backend call in per-category resilience.
package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/breaker"
	"mcpgw/internal/infra/cache"
	"mcpgw/internal/infra/telemetry"
)

// Call categories. Each gets an independent breaker so a failing resource
// backend cannot degrade tool execution.
const (
	CategoryToolCall     = "tool_call"
	CategoryResourceRead = "resource_read"
	CategoryPromptGet    = "prompt_get"
)

type Options struct {
	Logger         *zap.Logger
	Metrics        telemetry.Metrics
	Cache          *cache.GatewayCache
	CatalogTimeout time.Duration

	// Breaker profiles. Zero-valued fields fall back to the category
	// defaults.
	ToolBreaker     breaker.Config
	ResourceBreaker breaker.Config
	PromptBreaker   breaker.Config
}

// Service is the capability gateway core. It owns one circuit breaker per
// backend-call category and consults the preset to decide what is exposed.
type Service struct {
	provider domain.BackendProvider
	cache    *cache.GatewayCache
	logger   *zap.Logger
	metrics  telemetry.Metrics

	catalogTimeout time.Duration

	toolBreaker     *breaker.Breaker
	resourceBreaker *breaker.Breaker
	promptBreaker   *breaker.Breaker
}

func NewService(provider domain.BackendProvider, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	catalogTimeout := opts.CatalogTimeout
	if catalogTimeout <= 0 {
		catalogTimeout = domain.DefaultCatalogTimeout
	}

	s := &Service{
		provider:       provider,
		cache:          opts.Cache,
		logger:         logger.Named("gateway"),
		metrics:        metrics,
		catalogTimeout: catalogTimeout,
	}

	toolCfg := opts.ToolBreaker
	toolCfg.Name = CategoryToolCall
	if toolCfg.Timeout <= 0 {
		toolCfg.Timeout = domain.DefaultToolCallTimeout
	}
	resourceCfg := opts.ResourceBreaker
	resourceCfg.Name = CategoryResourceRead
	if resourceCfg.Timeout <= 0 {
		resourceCfg.Timeout = domain.DefaultResourceReadTimeout
	}
	promptCfg := opts.PromptBreaker
	promptCfg.Name = CategoryPromptGet
	if promptCfg.Timeout <= 0 {
		promptCfg.Timeout = domain.DefaultPromptGetTimeout
	}

	s.toolBreaker = breaker.New(toolCfg, logger)
	s.resourceBreaker = breaker.New(resourceCfg, logger)
	s.promptBreaker = breaker.New(promptCfg, logger)
	for _, b := range []*breaker.Breaker{s.toolBreaker, s.resourceBreaker, s.promptBreaker} {
		b.OnTransition(s.observeTransition)
	}
	return s
}

func (s *Service) observeTransition(name string, from, to breaker.State) {
	s.metrics.ObserveBreakerTransition(name, string(from), string(to))
	s.metrics.SetBreakerState(name, to == breaker.StateOpen)
}

// BreakerStates reports the current state of every category breaker.
func (s *Service) BreakerStates() map[string]breaker.State {
	return map[string]breaker.State{
		CategoryToolCall:     s.toolBreaker.State(),
		CategoryResourceRead: s.resourceBreaker.State(),
		CategoryPromptGet:    s.promptBreaker.State(),
	}
}

// PresetTools returns the preset's filtered tool set keyed by composite tool
// id. The aggregate catalog is fetched once under a hard timeout: a timeout
// aborts the whole call, it is not per-backend resilient.
func (s *Service) PresetTools(ctx context.Context, preset *domain.Preset) (map[string]domain.ToolDefinition, error) {
	const op = "gateway.presetTools"
	if preset == nil || !preset.IsActive() {
		return map[string]domain.ToolDefinition{}, nil
	}
	if s.cache != nil {
		if tools, ok := s.cache.GetPresetTools(preset.OwnerID(), preset.Slug()); ok {
			return tools, nil
		}
		s.logger.Debug("preset tools cache miss",
			telemetry.EventField(telemetry.EventPresetCacheMiss),
			telemetry.PresetSlugField(preset.Slug()),
		)
	}

	catalogCtx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	start := time.Now()
	catalog, err := s.provider.ListTools(catalogCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("catalog load timed out",
				telemetry.EventField(telemetry.EventCatalogTimeout),
				telemetry.PresetSlugField(preset.Slug()),
				telemetry.DurationField(time.Since(start)),
			)
			return nil, domain.E(domain.CodeDeadlineExceeded, op, "", domain.ErrCatalogTimeout)
		}
		return nil, domain.Wrap(domain.CodeUnavailable, op, err)
	}

	tools := filterCatalog(preset, catalog)
	if s.cache != nil {
		s.cache.SetPresetTools(preset.OwnerID(), preset.Slug(), tools)
	}
	return tools, nil
}

// filterCatalog selects the catalog entries the preset's enabled bindings
// allow, in preset-binding order.
func filterCatalog(preset *domain.Preset, catalog []domain.CatalogTool) map[string]domain.ToolDefinition {
	byBackend := make(map[string][]domain.CatalogTool)
	for _, tool := range catalog {
		byBackend[tool.BackendID] = append(byBackend[tool.BackendID], tool)
	}

	tools := make(map[string]domain.ToolDefinition)
	for _, binding := range preset.EnabledServers() {
		for _, tool := range byBackend[binding.BackendServerID] {
			if !binding.AllowsTool(tool.Name) {
				continue
			}
			compositeID := domain.JoinToolID(tool.BackendID, tool.Name)
			tools[compositeID] = domain.ToolDefinition{
				CompositeID: compositeID,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
				BackendID:   tool.BackendID,
				BackendName: tool.BackendName,
			}
		}
	}
	return tools
}

// ExecuteToolCall routes a tool call to its backend through the tool-call
// breaker. An open breaker fails immediately without touching the backend.
func (s *Service) ExecuteToolCall(ctx context.Context, backendServerID, toolName string, args map[string]any) (*domain.ToolCallResult, error) {
	const op = "gateway.executeToolCall"
	if backendServerID == "" {
		return nil, domain.ValidationError(op, "backendServerId", "backend server id is required")
	}
	if toolName == "" {
		return nil, domain.ValidationError(op, "toolName", "tool name is required")
	}
	if args == nil {
		args = map[string]any{}
	}

	var result *domain.ToolCallResult
	start := time.Now()
	err := s.toolBreaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = s.provider.CallTool(ctx, backendServerID, toolName, args)
		return callErr
	})
	s.metrics.ObserveBackendCall(CategoryToolCall, time.Since(start), err)
	if err != nil {
		s.logger.Warn("tool call failed",
			telemetry.EventField(telemetry.EventToolCallFailed),
			telemetry.BackendIDField(backendServerID),
			zap.String("tool", toolName),
			telemetry.DurationField(time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

// PresetResources unions resource listings across the preset's enabled
// bindings. A single binding's failure is logged and skipped; the aggregate
// never fails because one backend does.
func (s *Service) PresetResources(ctx context.Context, preset *domain.Preset) []domain.ResourceDefinition {
	if preset == nil || !preset.IsActive() {
		return []domain.ResourceDefinition{}
	}
	out := []domain.ResourceDefinition{}
	for _, binding := range preset.EnabledServers() {
		backendID := binding.BackendServerID
		var resources []domain.ResourceDefinition
		err := s.listQuietly(ctx, s.resourceBreaker, CategoryResourceRead, backendID, func(ctx context.Context) error {
			var listErr error
			resources, listErr = s.provider.ListResources(ctx, backendID)
			return listErr
		})
		if err != nil {
			continue
		}
		for _, resource := range resources {
			resource.BackendID = backendID
			out = append(out, resource)
		}
	}
	return out
}

// PresetPrompts unions prompt listings across enabled bindings with the same
// partial-failure semantics as PresetResources.
func (s *Service) PresetPrompts(ctx context.Context, preset *domain.Preset) []domain.PromptDefinition {
	if preset == nil || !preset.IsActive() {
		return []domain.PromptDefinition{}
	}
	out := []domain.PromptDefinition{}
	for _, binding := range preset.EnabledServers() {
		backendID := binding.BackendServerID
		var prompts []domain.PromptDefinition
		err := s.listQuietly(ctx, s.promptBreaker, CategoryPromptGet, backendID, func(ctx context.Context) error {
			var listErr error
			prompts, listErr = s.provider.ListPrompts(ctx, backendID)
			return listErr
		})
		if err != nil {
			continue
		}
		for _, prompt := range prompts {
			prompt.BackendID = backendID
			out = append(out, prompt)
		}
	}
	return out
}

// PresetRoots unions filesystem roots across enabled bindings.
func (s *Service) PresetRoots(ctx context.Context, preset *domain.Preset) []domain.RootDefinition {
	if preset == nil || !preset.IsActive() {
		return []domain.RootDefinition{}
	}
	out := []domain.RootDefinition{}
	for _, binding := range preset.EnabledServers() {
		backendID := binding.BackendServerID
		var roots []domain.RootDefinition
		err := s.listQuietly(ctx, s.resourceBreaker, CategoryResourceRead, backendID, func(ctx context.Context) error {
			var listErr error
			roots, listErr = s.provider.ListRoots(ctx, backendID)
			return listErr
		})
		if err != nil {
			continue
		}
		for _, root := range roots {
			root.BackendID = backendID
			out = append(out, root)
		}
	}
	return out
}

// listQuietly runs one binding's listing through a breaker and demotes any
// failure to a log line so the aggregate keeps going.
func (s *Service) listQuietly(ctx context.Context, b *breaker.Breaker, category, backendID string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := b.Do(ctx, fn)
	s.metrics.ObserveBackendCall(category, time.Since(start), err)
	if err != nil {
		s.logger.Warn("binding listing skipped",
			telemetry.EventField(telemetry.EventBindingSkipped),
			telemetry.CategoryField(category),
			telemetry.BackendIDField(backendID),
			telemetry.DurationField(time.Since(start)),
			zap.Error(err),
		)
	}
	return err
}

// ReadResource reads one resource through the resource-read breaker.
func (s *Service) ReadResource(ctx context.Context, backendServerID, uri string) ([]domain.ResourceContent, error) {
	const op = "gateway.readResource"
	if backendServerID == "" {
		return nil, domain.ValidationError(op, "backendServerId", "backend server id is required")
	}
	if uri == "" {
		return nil, domain.ValidationError(op, "uri", "resource uri is required")
	}

	var contents []domain.ResourceContent
	start := time.Now()
	err := s.resourceBreaker.Do(ctx, func(ctx context.Context) error {
		var readErr error
		contents, readErr = s.provider.ReadResource(ctx, backendServerID, uri)
		return readErr
	})
	s.metrics.ObserveBackendCall(CategoryResourceRead, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return contents, nil
}

// GetPrompt fetches one prompt through the prompt-get breaker.
func (s *Service) GetPrompt(ctx context.Context, backendServerID, name string, args map[string]string) (*domain.PromptResult, error) {
	const op = "gateway.getPrompt"
	if backendServerID == "" {
		return nil, domain.ValidationError(op, "backendServerId", "backend server id is required")
	}
	if name == "" {
		return nil, domain.ValidationError(op, "name", "prompt name is required")
	}
	if args == nil {
		args = map[string]string{}
	}

	var result *domain.PromptResult
	start := time.Now()
	err := s.promptBreaker.Do(ctx, func(ctx context.Context) error {
		var getErr error
		result, getErr = s.provider.GetPrompt(ctx, backendServerID, name, args)
		return getErr
	})
	s.metrics.ObserveBackendCall(CategoryPromptGet, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InvalidatePreset drops the cached artifacts for one owner's preset slug.
func (s *Service) InvalidatePreset(ownerID, slug string) {
	if s.cache != nil {
		s.cache.InvalidatePreset(ownerID, slug)
	}
}

package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/backend"
	"mcpgw/internal/infra/breaker"
	"mcpgw/internal/infra/cache"
	"mcpgw/internal/infra/config"
	"mcpgw/internal/infra/elicitation"
	"mcpgw/internal/infra/gateway"
	"mcpgw/internal/infra/mcpserver"
	"mcpgw/internal/infra/router"
	"mcpgw/internal/infra/sampling"
	"mcpgw/internal/infra/telemetry"
)

// Runtime is the single long-lived object owning the gateway's shared
// mutable state: the circuit breakers, the preset cache and the protocol
// server cache. It is constructed once at process start and passed by
// reference into the router.
type Runtime struct {
	logger  *zap.Logger
	metrics telemetry.Metrics

	Provider *backend.SessionProvider
	Gateway  *gateway.Service
	Presets  domain.PresetRepository
	Router   *router.Router

	ttlCache    *cache.TTLCache
	sampling    domain.SamplingHandler
	elicitation domain.ElicitationHandler

	mu           sync.RWMutex
	schemeRoutes map[string]string
}

type RuntimeOptions struct {
	Config  config.Config
	Presets domain.PresetRepository
	Logger  *zap.Logger

	// Registerer defaults to the process-wide Prometheus registry.
	Registerer prometheus.Registerer
}

func NewRuntime(ctx context.Context, opts RuntimeOptions) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := telemetry.NewPrometheusMetrics(opts.Registerer)

	provider := backend.NewSessionProvider(logger)
	ttlCache := cache.New(cache.Options{
		TTL:       cfg.Cache.TTL(),
		MaxSize:   cfg.Cache.MaxSize,
		SweepTick: cfg.Cache.SweepTick(),
	})

	svc := gateway.NewService(provider, gateway.Options{
		Logger:          logger,
		Metrics:         metrics,
		Cache:           cache.NewGatewayCache(ttlCache),
		CatalogTimeout:  cfg.CatalogTimeout(),
		ToolBreaker:     breakerConfig(cfg.Breakers.ToolCall),
		ResourceBreaker: breakerConfig(cfg.Breakers.ResourceRead),
		PromptBreaker:   breakerConfig(cfg.Breakers.PromptGet),
	})

	rt := &Runtime{
		logger:       logger,
		metrics:      metrics,
		Provider:     provider,
		Gateway:      svc,
		Presets:      opts.Presets,
		ttlCache:     ttlCache,
		schemeRoutes: cloneRoutes(cfg.SchemeRoutes),
	}

	if cfg.Elicitation.Mode == "queue" {
		rt.elicitation = elicitation.NewQueue(elicitation.QueueOptions{
			WaitTimeout: cfg.Elicitation.WaitTimeout(),
			Logger:      logger,
		})
	} else {
		rt.elicitation = elicitation.NewDefaultHandler(logger)
	}

	if cfg.Sampling.Enabled {
		handler, err := sampling.NewHandler(ctx, sampling.Config{
			Provider:     cfg.Sampling.Provider,
			Model:        cfg.Sampling.Model,
			APIKey:       cfg.Sampling.APIKey,
			APIKeyEnvVar: cfg.Sampling.APIKeyEnvVar,
			BaseURL:      cfg.Sampling.BaseURL,
		}, logger)
		if err != nil {
			ttlCache.Stop()
			return nil, err
		}
		rt.sampling = handler
	}

	rt.Router = router.New(router.Options{
		Auth:    router.HeaderAuthenticator{Header: cfg.AuthHeader},
		Presets: opts.Presets,
		Factory: rt,
		Logger:  logger,
		Metrics: metrics,
	})
	return rt, nil
}

func breakerConfig(cfg config.BreakerConfig) breaker.Config {
	return breaker.Config{
		Timeout:    cfg.Timeout(),
		ErrorRate:  cfg.ErrorRate,
		MinVolume:  cfg.MinVolume,
		ResetDelay: cfg.ResetDelay(),
	}
}

func cloneRoutes(routes map[string]string) map[string]string {
	out := make(map[string]string, len(routes))
	for scheme, backendID := range routes {
		out[scheme] = backendID
	}
	return out
}

// Build satisfies the router's server factory: one initialized protocol
// server per (owner, preset) scope.
func (rt *Runtime) Build(ctx context.Context, ownerID string, preset *domain.Preset) (router.ProtocolServer, error) {
	name := ownerID
	if preset != nil {
		name = ownerID + "/" + preset.Slug()
	}

	rt.mu.RLock()
	routes := cloneRoutes(rt.schemeRoutes)
	rt.mu.RUnlock()

	server := mcpserver.New(rt.Gateway, mcpserver.Options{
		Name:         name,
		Preset:       preset,
		Sampling:     rt.sampling,
		Elicitation:  rt.elicitation,
		SchemeRoutes: routes,
		Logger:       rt.logger,
	})
	if err := server.Initialize(ctx); err != nil {
		return nil, err
	}
	return server, nil
}

// UpdateSchemeRoutes swaps the resource routing table. Cached servers keep
// their snapshot until they are rebuilt.
func (rt *Runtime) UpdateSchemeRoutes(routes map[string]string) {
	rt.mu.Lock()
	rt.schemeRoutes = cloneRoutes(routes)
	rt.mu.Unlock()
}

// SavePreset persists a preset and drops every cached artifact derived from
// it, so the next request observes the new configuration.
func (rt *Runtime) SavePreset(ctx context.Context, preset *domain.Preset) error {
	if err := rt.Presets.Save(ctx, preset); err != nil {
		return err
	}
	rt.Gateway.InvalidatePreset(preset.OwnerID(), preset.Slug())
	rt.Router.InvalidateOwner(preset.OwnerID())
	return nil
}

// DeletePreset removes a preset and its cached artifacts.
func (rt *Runtime) DeletePreset(ctx context.Context, ownerID, slug string) error {
	if err := rt.Presets.Delete(ctx, ownerID, slug); err != nil {
		return err
	}
	rt.Gateway.InvalidatePreset(ownerID, slug)
	rt.Router.InvalidateOwner(ownerID)
	return nil
}

// Elicitations exposes the approval queue when elicitation runs in queue
// mode, for an operator surface to resolve. Nil otherwise.
func (rt *Runtime) Elicitations() *elicitation.Queue {
	queue, ok := rt.elicitation.(*elicitation.Queue)
	if !ok {
		return nil
	}
	return queue
}

func (rt *Runtime) Close() {
	rt.ttlCache.Stop()
}

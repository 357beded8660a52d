// Package router maps multiplexed HTTP requests onto cached protocol
// servers, one per (owner, preset) pair.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/telemetry"
)

// allScope is the cache-key segment for requests without a preset slug.
const allScope = "all"

// ProtocolServer is what the router multiplexes requests onto.
type ProtocolServer interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// ServerFactory builds and initializes a protocol server for one scope. A
// nil preset means the unscoped (empty capability) server.
type ServerFactory interface {
	Build(ctx context.Context, ownerID string, preset *domain.Preset) (ProtocolServer, error)
}

type Options struct {
	Auth    Authenticator
	Presets domain.PresetRepository
	Factory ServerFactory
	Logger  *zap.Logger
	Metrics telemetry.Metrics

	// KeepAlive is the SSE heartbeat interval.
	KeepAlive time.Duration
}

// Router owns the protocol server cache. Servers are built lazily on first
// use and reused until an explicit DELETE evicts them; the per-request
// channel is never reused.
type Router struct {
	auth      Authenticator
	presets   domain.PresetRepository
	factory   ServerFactory
	logger    *zap.Logger
	metrics   telemetry.Metrics
	keepAlive time.Duration

	mu      sync.Mutex
	servers map[string]ProtocolServer
}

func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics{}
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &Router{
		auth:      opts.Auth,
		presets:   opts.Presets,
		factory:   opts.Factory,
		logger:    logger.Named("router"),
		metrics:   metrics,
		keepAlive: keepAlive,
		servers:   make(map[string]ProtocolServer),
	}
}

// Routes mounts the multiplexed endpoint. Paths that do not parse into
// /servers/{ownerID}/mcp[/{presetSlug}] are malformed, not merely unknown.
func (rt *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusBadRequest, "malformed gateway path")
	})
	r.Route("/servers/{ownerID}/mcp", func(r chi.Router) {
		r.Post("/", rt.handleRPC)
		r.Get("/", rt.handleStream)
		r.Delete("/", rt.handleDelete)
		r.Post("/{presetSlug}", rt.handleRPC)
		r.Get("/{presetSlug}", rt.handleStream)
		r.Delete("/{presetSlug}", rt.handleDelete)
	})
	return r
}

func cacheKey(ownerID, slug string) string {
	if slug == "" {
		slug = allScope
	}
	return ownerID + "/" + slug
}

// requestScope carries the resolved (owner, preset) pair of one request.
type requestScope struct {
	ownerID string
	slug    string
}

// resolveScope authenticates and authorizes the request path. On failure it
// writes the error response and returns the HTTP status; a zero status means
// the request may proceed.
func (rt *Router) resolveScope(w http.ResponseWriter, r *http.Request) (requestScope, int) {
	caller := rt.auth.Authenticate(r)
	if caller == "" {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return requestScope{}, http.StatusUnauthorized
	}

	ownerID := chi.URLParam(r, "ownerID")
	if ownerID == "" {
		writeJSONError(w, http.StatusBadRequest, "owner id is required")
		return requestScope{}, http.StatusBadRequest
	}

	// No cross-tenant access, even for public presets: composite tool ids
	// are namespaced per owner.
	if caller != ownerID {
		writeJSONError(w, http.StatusForbidden, "caller does not own this namespace")
		return requestScope{}, http.StatusForbidden
	}

	return requestScope{ownerID: ownerID, slug: chi.URLParam(r, "presetSlug")}, 0
}

// resolvePreset loads the named preset scoped to its owner. A same-slug
// preset under a different owner is not found.
func (rt *Router) resolvePreset(ctx context.Context, scope requestScope) (*domain.Preset, error) {
	if scope.slug == "" {
		return nil, nil
	}
	preset, err := rt.presets.GetBySlug(ctx, scope.ownerID, scope.slug)
	if err != nil {
		return nil, err
	}
	if preset == nil || preset.OwnerID() != scope.ownerID {
		return nil, domain.E(domain.CodeNotFound, "router.resolvePreset",
			fmt.Sprintf("preset %q not found", scope.slug), domain.ErrPresetNotFound)
	}
	return preset, nil
}

// serverFor returns the cached protocol server for a scope, building and
// initializing it on first use.
func (rt *Router) serverFor(ctx context.Context, scope requestScope) (ProtocolServer, error) {
	key := cacheKey(scope.ownerID, scope.slug)

	rt.mu.Lock()
	if server, ok := rt.servers[key]; ok {
		rt.mu.Unlock()
		return server, nil
	}
	rt.mu.Unlock()

	preset, err := rt.resolvePreset(ctx, scope)
	if err != nil {
		return nil, err
	}
	server, err := rt.factory.Build(ctx, scope.ownerID, preset)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	// Another request may have built the same scope concurrently; keep the
	// first one so both callers share an instance.
	if existing, ok := rt.servers[key]; ok {
		return existing, nil
	}
	rt.servers[key] = server
	rt.metrics.SetCachedServers(len(rt.servers))
	rt.logger.Info("protocol server cached",
		telemetry.EventField(telemetry.EventServerBuilt),
		telemetry.OwnerIDField(scope.ownerID),
		telemetry.PresetSlugField(scope.slug),
	)
	return server, nil
}

func (rt *Router) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := rt.serveRPC(w, r)
	rt.metrics.ObserveHTTPRequest(r.Method, "/servers/{ownerID}/mcp", status, time.Since(start))
}

func (rt *Router) serveRPC(w http.ResponseWriter, r *http.Request) int {
	scope, failed := rt.resolveScope(w, r)
	if failed != 0 {
		return failed
	}

	ctx := r.Context()
	server, err := rt.serverFor(ctx, scope)
	if err != nil {
		return rt.writeScopeError(w, scope, err)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable request body")
		return http.StatusBadRequest
	}

	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		writeRPCError(w, nil, &domain.ProtocolError{Code: domain.ErrCodeParse, Message: "parse error"})
		return http.StatusOK
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.Method == "" {
		writeRPCError(w, nil, &domain.ProtocolError{Code: domain.ErrCodeInvalidRequest, Message: "invalid request"})
		return http.StatusOK
	}

	result, err := server.Handle(ctx, req.Method, req.Params)
	if err != nil {
		writeRPCError(w, &req.ID, toProtocolError(err))
		return http.StatusOK
	}

	raw, err := json.Marshal(result)
	if err != nil {
		writeRPCError(w, &req.ID, &domain.ProtocolError{Code: domain.ErrCodeInternal, Message: "unencodable result"})
		return http.StatusOK
	}
	wire, err := jsonrpc.EncodeMessage(&jsonrpc.Response{ID: req.ID, Result: raw})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(wire)
	return http.StatusOK
}

// handleStream opens the server-push channel for a cached server. The
// channel itself is per-request; only the server instance is shared.
func (rt *Router) handleStream(w http.ResponseWriter, r *http.Request) {
	scope, failed := rt.resolveScope(w, r)
	if failed != 0 {
		return
	}
	ctx := r.Context()
	if _, err := rt.serverFor(ctx, scope); err != nil {
		rt.writeScopeError(w, scope, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: open\ndata: {\"scope\":%q}\n\n", cacheKey(scope.ownerID, scope.slug))
	flusher.Flush()

	ticker := time.NewTicker(rt.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleDelete terminates the session: the cached server is evicted and the
// next request builds a fresh one.
func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, failed := rt.resolveScope(w, r)
	if failed != 0 {
		return
	}

	key := cacheKey(scope.ownerID, scope.slug)
	rt.mu.Lock()
	delete(rt.servers, key)
	rt.metrics.SetCachedServers(len(rt.servers))
	rt.mu.Unlock()

	rt.logger.Info("protocol server evicted",
		telemetry.EventField(telemetry.EventServerEvicted),
		telemetry.OwnerIDField(scope.ownerID),
		telemetry.PresetSlugField(scope.slug),
	)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true}`))
}

// InvalidateOwner evicts every cached server for one owner. Used when a
// preset mutation must force rebuilds.
func (rt *Router) InvalidateOwner(ownerID string) {
	prefix := ownerID + "/"
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for key := range rt.servers {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(rt.servers, key)
		}
	}
	rt.metrics.SetCachedServers(len(rt.servers))
}

func (rt *Router) writeScopeError(w http.ResponseWriter, scope requestScope, err error) int {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrPresetNotFound) {
		status = http.StatusNotFound
	} else if code, ok := domain.CodeFrom(err); ok && code == domain.CodeNotFound {
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		rt.logger.Error("request failed",
			telemetry.EventField(telemetry.EventRequestRejected),
			telemetry.OwnerIDField(scope.ownerID),
			telemetry.PresetSlugField(scope.slug),
			zap.Error(err),
		)
	}
	writeJSONError(w, status, err.Error())
	return status
}

func toProtocolError(err error) *domain.ProtocolError {
	var protoErr *domain.ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr
	}
	return &domain.ProtocolError{Code: domain.ErrCodeInternal, Message: err.Error()}
}

type rpcErrorEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *jsonrpc.ID           `json:"id,omitempty"`
	Error   *domain.ProtocolError `json:"error"`
}

func writeRPCError(w http.ResponseWriter, id *jsonrpc.ID, protoErr *domain.ProtocolError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcErrorEnvelope{JSONRPC: "2.0", ID: id, Error: protoErr})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

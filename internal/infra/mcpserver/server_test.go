package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
	"mcpgw/internal/infra/gateway"
)

type stubProvider struct {
	catalog []domain.CatalogTool

	callResult *domain.ToolCallResult
	callErr    error
	calledTool string

	resources map[string][]domain.ResourceDefinition
	contents  []domain.ResourceContent
	readErr   error
	readFrom  string
	prompts   map[string][]domain.PromptDefinition
	prompt    *domain.PromptResult
	roots     map[string][]domain.RootDefinition
}

func (p *stubProvider) ListTools(context.Context) ([]domain.CatalogTool, error) {
	return p.catalog, nil
}

func (p *stubProvider) CallTool(_ context.Context, _, toolName string, _ map[string]any) (*domain.ToolCallResult, error) {
	p.calledTool = toolName
	return p.callResult, p.callErr
}

func (p *stubProvider) ListResources(_ context.Context, serverID string) ([]domain.ResourceDefinition, error) {
	return p.resources[serverID], nil
}

func (p *stubProvider) ReadResource(_ context.Context, serverID, _ string) ([]domain.ResourceContent, error) {
	p.readFrom = serverID
	return p.contents, p.readErr
}

func (p *stubProvider) ListPrompts(_ context.Context, serverID string) ([]domain.PromptDefinition, error) {
	return p.prompts[serverID], nil
}

func (p *stubProvider) GetPrompt(context.Context, string, string, map[string]string) (*domain.PromptResult, error) {
	return p.prompt, nil
}

func (p *stubProvider) ListRoots(_ context.Context, serverID string) ([]domain.RootDefinition, error) {
	return p.roots[serverID], nil
}

type stubSampling struct {
	result *domain.SamplingResult
}

func (s *stubSampling) CreateMessage(context.Context, *domain.SamplingRequest) (*domain.SamplingResult, error) {
	return s.result, nil
}

type stubElicitation struct {
	result *domain.ElicitationResult
}

func (s *stubElicitation) Elicit(context.Context, *domain.ElicitationRequest) (*domain.ElicitationResult, error) {
	return s.result, nil
}

func testPreset(t *testing.T, bindings ...domain.ServerBinding) *domain.Preset {
	t.Helper()
	preset, err := domain.NewPreset(domain.PresetParams{
		OwnerID: "owner-1",
		Slug:    "assistant",
		Name:    "Assistant",
		Servers: bindings,
	})
	require.NoError(t, err)
	return preset
}

func newServer(t *testing.T, provider *stubProvider, opts Options) *PresetServer {
	t.Helper()
	svc := gateway.NewService(provider, gateway.Options{Logger: zap.NewNop()})
	opts.Logger = zap.NewNop()
	server := New(svc, opts)
	require.NoError(t, server.Initialize(context.Background()))
	return server
}

func TestHandle_UnknownMethod(t *testing.T) {
	server := newServer(t, &stubProvider{}, Options{})

	_, err := server.Handle(context.Background(), "tools/unknown", nil)
	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.EqualValues(t, domain.ErrCodeMethodNotFound, protoErr.Code)
}

func TestHandle_RequiresInitialize(t *testing.T) {
	svc := gateway.NewService(&stubProvider{}, gateway.Options{Logger: zap.NewNop()})
	server := New(svc, Options{Logger: zap.NewNop()})

	_, err := server.Handle(context.Background(), MethodToolsList, nil)
	require.Error(t, err)
}

func TestToolsList_CompositeNamesAndSchemaDegradation(t *testing.T) {
	provider := &stubProvider{
		catalog: []domain.CatalogTool{
			{BackendID: "b", Name: "search", InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)},
			{BackendID: "b", Name: "broken", InputSchema: json.RawMessage(`["not a schema"]`)},
		},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsList, nil)
	require.NoError(t, err)
	listing, ok := result.(toolsListResult)
	require.True(t, ok)
	require.Len(t, listing.Tools, 2)
	require.Equal(t, "b::broken", listing.Tools[0].Name)
	require.JSONEq(t, string(emptyObjectSchema), string(listing.Tools[0].InputSchema))
	require.Equal(t, "b::search", listing.Tools[1].Name)
	require.Contains(t, string(listing.Tools[1].InputSchema), `"q"`)
}

func TestToolsList_NilPresetIsEmpty(t *testing.T) {
	provider := &stubProvider{catalog: []domain.CatalogTool{{BackendID: "b", Name: "search"}}}
	server := newServer(t, provider, Options{})

	result, err := server.Handle(context.Background(), MethodToolsList, nil)
	require.NoError(t, err)
	require.Empty(t, result.(toolsListResult).Tools)
}

func TestToolsCall_RejectsUnknownToolAsErrorResult(t *testing.T) {
	provider := &stubProvider{catalog: []domain.CatalogTool{{BackendID: "b", Name: "search"}}}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{"name":"b::missing"}`))
	require.NoError(t, err)
	call := result.(toolCallResult)
	require.True(t, call.IsError)
	require.Contains(t, call.Content[0].(contentBlock).Text, "unknown tool")

	result, err = server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, result.(toolCallResult).IsError)
}

func TestToolsCall_RoutesToBackendAndNormalizesString(t *testing.T) {
	provider := &stubProvider{
		catalog:    []domain.CatalogTool{{BackendID: "b", Name: "search"}},
		callResult: &domain.ToolCallResult{Raw: "found 3 results"},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall,
		json.RawMessage(`{"name":"b::search","arguments":{"q":"go"}}`))
	require.NoError(t, err)
	call := result.(toolCallResult)
	require.False(t, call.IsError)
	require.Equal(t, []any{contentBlock{Type: "text", Text: "found 3 results"}}, call.Content)
	require.Equal(t, "search", provider.calledTool)
}

func TestToolsCall_PassesThroughContentShape(t *testing.T) {
	provider := &stubProvider{
		catalog: []domain.CatalogTool{{BackendID: "b", Name: "search"}},
		callResult: &domain.ToolCallResult{Raw: map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "hit"}},
		}},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{"name":"b::search"}`))
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"type": "text", "text": "hit"}}, result.(toolCallResult).Content)
}

func TestToolsCall_PassthroughKeepsNonTextBlocks(t *testing.T) {
	imageBlock := map[string]any{
		"type":     "image",
		"data":     "aGVsbG8=",
		"mimeType": "image/png",
	}
	provider := &stubProvider{
		catalog: []domain.CatalogTool{{BackendID: "b", Name: "search"}},
		callResult: &domain.ToolCallResult{Raw: map[string]any{
			"content": []any{imageBlock},
		}},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{"name":"b::search"}`))
	require.NoError(t, err)
	call := result.(toolCallResult)
	require.Equal(t, []any{imageBlock}, call.Content)

	encoded, err := json.Marshal(call)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"content":[{"type":"image","data":"aGVsbG8=","mimeType":"image/png"}]}`,
		string(encoded))
}

func TestToolsCall_StringifiesStructuredResults(t *testing.T) {
	provider := &stubProvider{
		catalog:    []domain.CatalogTool{{BackendID: "b", Name: "search"}},
		callResult: &domain.ToolCallResult{Raw: map[string]any{"count": float64(3)}},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{"name":"b::search"}`))
	require.NoError(t, err)
	call := result.(toolCallResult)
	require.JSONEq(t, `{"count":3}`, call.Content[0].(contentBlock).Text)
}

func TestToolsCall_BackendFailureStaysInSession(t *testing.T) {
	provider := &stubProvider{
		catalog: []domain.CatalogTool{{BackendID: "b", Name: "search"}},
		callErr: errors.New("backend exploded"),
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	result, err := server.Handle(context.Background(), MethodToolsCall, json.RawMessage(`{"name":"b::search"}`))
	require.NoError(t, err)
	require.True(t, result.(toolCallResult).IsError)
}

func TestResourcesRead_SchemeRouting(t *testing.T) {
	provider := &stubProvider{
		contents: []domain.ResourceContent{{URI: "file:///etc/motd", Text: "hello"}},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "fs", Enabled: true})
	server := newServer(t, provider, Options{
		Preset:       preset,
		SchemeRoutes: map[string]string{"file": "fs"},
	})

	result, err := server.Handle(context.Background(), MethodResourcesRead, json.RawMessage(`{"uri":"file:///etc/motd"}`))
	require.NoError(t, err)
	read := result.(resourceReadResult)
	require.False(t, read.IsError)
	require.Equal(t, "fs", provider.readFrom)
	require.Equal(t, "hello", read.Contents[0].Text)
}

func TestResourcesRead_UnroutedSchemeIsErrorResult(t *testing.T) {
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "fs", Enabled: true})
	server := newServer(t, &stubProvider{}, Options{
		Preset:       preset,
		SchemeRoutes: map[string]string{"file": "fs"},
	})

	result, err := server.Handle(context.Background(), MethodResourcesRead, json.RawMessage(`{"uri":"github://owner/repo"}`))
	require.NoError(t, err)
	require.True(t, result.(resourceReadResult).IsError)
}

func TestPromptsListAndGet_UseCompositeNames(t *testing.T) {
	provider := &stubProvider{
		prompts: map[string][]domain.PromptDefinition{
			"b": {{Name: "summarize", Description: "summarize text"}},
		},
		prompt: &domain.PromptResult{
			Description: "summarize text",
			Messages:    []domain.PromptMessage{{Role: "user", Content: json.RawMessage(`{"type":"text","text":"go"}`)}},
		},
	}
	preset := testPreset(t, domain.ServerBinding{BackendServerID: "b", Enabled: true})
	server := newServer(t, provider, Options{Preset: preset})

	listing, err := server.Handle(context.Background(), MethodPromptsList, nil)
	require.NoError(t, err)
	prompts := listing.(promptsListResult).Prompts
	require.Len(t, prompts, 1)
	require.Equal(t, "b::summarize", prompts[0].Name)

	result, err := server.Handle(context.Background(), MethodPromptsGet, json.RawMessage(`{"name":"b::summarize"}`))
	require.NoError(t, err)
	got := result.(promptGetResult)
	require.False(t, got.IsError)
	require.Equal(t, "summarize text", got.Description)
	require.Len(t, got.Messages, 1)
}

func TestSampling_ValidatesBeforeHandler(t *testing.T) {
	server := newServer(t, &stubProvider{}, Options{
		Sampling: &stubSampling{result: &domain.SamplingResult{Role: "assistant"}},
	})

	_, err := server.Handle(context.Background(), MethodSamplingCreateMessage, json.RawMessage(`{"messages":[]}`))
	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.EqualValues(t, domain.ErrCodeInvalidParams, protoErr.Code)

	result, err := server.Handle(context.Background(), MethodSamplingCreateMessage,
		json.RawMessage(`{"messages":[{"role":"user","content":{"type":"text","text":"hi"}}]}`))
	require.NoError(t, err)
	require.Equal(t, "assistant", result.(*domain.SamplingResult).Role)
}

func TestElicitation_ValidatesModeRequirements(t *testing.T) {
	server := newServer(t, &stubProvider{}, Options{
		Elicitation: &stubElicitation{result: &domain.ElicitationResult{Action: domain.ElicitationAccept}},
	})

	_, err := server.Handle(context.Background(), MethodElicitationCreate,
		json.RawMessage(`{"message":"confirm?","mode":"form"}`))
	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.EqualValues(t, domain.ErrCodeInvalidParams, protoErr.Code)

	result, err := server.Handle(context.Background(), MethodElicitationCreate,
		json.RawMessage(`{"message":"confirm?","mode":"form","requestedSchema":{"type":"object"}}`))
	require.NoError(t, err)
	require.Equal(t, domain.ElicitationAccept, result.(*domain.ElicitationResult).Action)
}

func TestStatus_CountsDistinctExposedBackends(t *testing.T) {
	provider := &stubProvider{
		catalog: []domain.CatalogTool{
			{BackendID: "b1", Name: "search"},
			{BackendID: "b2", Name: "fetch"},
		},
		resources: map[string][]domain.ResourceDefinition{
			"b1": {{URI: "file:///a"}},
		},
		roots: map[string][]domain.RootDefinition{
			"b2": {{URI: "file:///root"}},
		},
	}
	preset := testPreset(t,
		domain.ServerBinding{BackendServerID: "b1", Enabled: true},
		domain.ServerBinding{BackendServerID: "b2", Enabled: true},
		domain.ServerBinding{BackendServerID: "idle", Enabled: true},
	)
	server := newServer(t, provider, Options{Name: "assistant", Preset: preset})

	status := server.Status(context.Background())
	require.True(t, status.Enabled)
	require.Equal(t, "assistant", status.ServerName)
	require.Equal(t, ProtocolVersion, status.ProtocolVersion)
	require.Equal(t, 2, status.ToolCount)
	require.Equal(t, 1, status.ResourceCount)
	require.Equal(t, 1, status.RootCount)
	require.Equal(t, 2, status.BackendCount)
}

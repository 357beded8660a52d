package sampling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mcpgw/internal/domain"
)

func TestToMessages_SystemPromptAndRoles(t *testing.T) {
	messages, err := toMessages(&domain.SamplingRequest{
		SystemPrompt: "be brief",
		Messages: []domain.SamplingMessage{
			{Role: "user", Content: domain.SamplingContent{Type: "text", Text: "hello"}},
			{Role: "assistant", Content: domain.SamplingContent{Text: "hi"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "be brief", messages[0].Content)
	require.Equal(t, "hello", messages[1].Content)
	require.Equal(t, "hi", messages[2].Content)
}

func TestToMessages_RejectsNonTextContent(t *testing.T) {
	_, err := toMessages(&domain.SamplingRequest{
		Messages: []domain.SamplingMessage{
			{Role: "user", Content: domain.SamplingContent{Type: "image", Data: "..."}},
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported content type")
}

func TestToMessages_RejectsUnknownRole(t *testing.T) {
	_, err := toMessages(&domain.SamplingRequest{
		Messages: []domain.SamplingMessage{
			{Role: "tool", Content: domain.SamplingContent{Text: "x"}},
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported role")
}

func TestNewHandler_RequiresAPIKey(t *testing.T) {
	_, err := NewHandler(context.Background(), Config{Model: "gpt-4o-mini"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key")
}

func TestNewHandler_UnsupportedProvider(t *testing.T) {
	_, err := NewHandler(context.Background(), Config{
		Provider: "carrier-pigeon",
		Model:    "m",
		APIKey:   "k",
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported provider")
}

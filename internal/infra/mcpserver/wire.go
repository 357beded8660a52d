package mcpserver

import (
	"encoding/json"
	"strings"

	"mcpgw/internal/domain"
)

// emptyObjectSchema is the degraded input schema used when a backend tool
// carries no usable schema. Listings must not fail over one bad schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type wireResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

type wirePrompt struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Arguments   []domain.PromptArgument `json:"arguments,omitempty"`
}

type wireRoot struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolsListResult struct {
	Tools []wireTool `json:"tools"`
}

type toolCallResult struct {
	Content []any `json:"content"`
	IsError bool  `json:"isError,omitempty"`
}

type resourcesListResult struct {
	Resources []wireResource `json:"resources"`
}

type resourceReadResult struct {
	Contents []domain.ResourceContent `json:"contents"`
	IsError  bool                     `json:"isError,omitempty"`
}

type resourceTemplatesResult struct {
	ResourceTemplates []any `json:"resourceTemplates"`
}

type promptsListResult struct {
	Prompts []wirePrompt `json:"prompts"`
}

type promptGetResult struct {
	Description string                 `json:"description,omitempty"`
	Messages    []domain.PromptMessage `json:"messages"`
	IsError     bool                   `json:"isError,omitempty"`
}

type rootsListResult struct {
	Roots []wireRoot `json:"roots"`
}

func textResult(text string, isError bool) toolCallResult {
	return toolCallResult{
		Content: []any{contentBlock{Type: "text", Text: text}},
		IsError: isError,
	}
}

// toolToWire shapes one internal tool definition for the wire. The wire name
// is the composite id so calls can be routed back to their backend.
func toolToWire(tool domain.ToolDefinition) wireTool {
	return wireTool{
		Name:        tool.CompositeID,
		Description: tool.Description,
		InputSchema: normalizeInputSchema(tool.InputSchema),
	}
}

// normalizeInputSchema keeps a schema only when it is a JSON object with
// type "object"; anything else degrades to the empty object schema.
func normalizeInputSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return emptyObjectSchema
	}
	var obj map[string]any
	if err := json.Unmarshal(schema, &obj); err != nil {
		return emptyObjectSchema
	}
	typ, ok := obj["type"].(string)
	if !ok || !strings.EqualFold(typ, "object") {
		return emptyObjectSchema
	}
	return schema
}

// normalizeCallResult shapes a backend tool result into {content: [...]}.
// Strings become one text block, an already {content:[...]}-shaped value
// passes through unchanged, anything else is JSON-stringified into one text
// block.
func normalizeCallResult(result *domain.ToolCallResult) toolCallResult {
	if result == nil {
		return toolCallResult{Content: []any{}}
	}
	switch raw := result.Raw.(type) {
	case string:
		return textResult(raw, result.IsError)
	case map[string]any:
		if blocks, ok := passthroughContent(raw); ok {
			return toolCallResult{Content: blocks, IsError: result.IsError}
		}
	}
	encoded, err := json.Marshal(result.Raw)
	if err != nil {
		return textResult("unencodable tool result", true)
	}
	return textResult(string(encoded), result.IsError)
}

// passthroughContent accepts a {content:[...]} value whose entries are all
// objects and returns them untouched, so non-text blocks keep their data,
// mimeType and resource fields.
func passthroughContent(raw map[string]any) ([]any, bool) {
	items, ok := raw["content"].([]any)
	if !ok {
		return nil, false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return nil, false
		}
	}
	return items, true
}

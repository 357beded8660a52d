package domain

import "encoding/json"

// ToolDefinition is a backend tool as seen through the gateway. CompositeID
// is the wire-level name; Name keeps the origin tool name for routing.
type ToolDefinition struct {
	CompositeID string          `json:"compositeId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	BackendID   string          `json:"backendId"`
	BackendName string          `json:"backendName,omitempty"`
}

// ResourceDefinition is a backend resource tagged with its origin.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	BackendID   string `json:"backendId"`
	BackendName string `json:"backendName,omitempty"`
}

// ResourceContent is one content entry of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptDefinition is a backend prompt tagged with its origin.
type PromptDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	BackendID   string           `json:"backendId"`
	BackendName string           `json:"backendName,omitempty"`
}

// PromptArgument describes a prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one message of a prompts/get result.
type PromptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// PromptResult is the outcome of a prompts/get call.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// RootDefinition is a filesystem root exposed by a backend.
type RootDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	BackendID   string `json:"backendId"`
	BackendName string `json:"backendName,omitempty"`
}

// CatalogTool is one entry of the aggregate backend tool catalog, before
// preset filtering.
type CatalogTool struct {
	BackendID   string
	BackendName string
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCallResult is the normalized outcome of a backend tool call. Raw holds
// the backend's result as returned; the protocol server shapes it for the
// wire.
type ToolCallResult struct {
	Raw     any
	IsError bool
}

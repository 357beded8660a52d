package domain

import "encoding/json"

// SamplingContent represents a single sampling content item.
type SamplingContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// SamplingMessage represents a single message in a sampling request.
type SamplingMessage struct {
	Role    string          `json:"role"`
	Content SamplingContent `json:"content"`
}

// ModelHint is a model preference hint.
type ModelHint struct {
	Name string `json:"name"`
}

// ModelPreferences captures model selection hints.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"`
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`
	CostPriority         *float64    `json:"costPriority,omitempty"`
}

// SamplingRequest defines the inputs for sampling/createMessage.
type SamplingRequest struct {
	IncludeContext   string            `json:"includeContext,omitempty"`
	MaxTokens        int64             `json:"maxTokens,omitempty"`
	Messages         []SamplingMessage `json:"messages"`
	Metadata         any               `json:"metadata,omitempty"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	Temperature      float64           `json:"temperature,omitempty"`
}

// Validate rejects a sampling request before any model work happens.
func (r *SamplingRequest) Validate() error {
	const op = "sampling.validate"
	if r == nil || len(r.Messages) == 0 {
		return ValidationError(op, "messages", "at least one message is required")
	}
	for _, msg := range r.Messages {
		if msg.Content.Type != "" && msg.Content.Type != "text" {
			return ValidationError(op, "messages", "only text content is supported")
		}
	}
	return nil
}

// SamplingResult represents the response to sampling/createMessage.
type SamplingResult struct {
	Role       string          `json:"role"`
	Content    SamplingContent `json:"content"`
	Model      string          `json:"model,omitempty"`
	StopReason string          `json:"stopReason,omitempty"`
}

// Elicitation modes.
const (
	ElicitationModeForm = "form"
	ElicitationModeURL  = "url"
)

// ElicitationRequest defines the inputs for elicitation/create.
type ElicitationRequest struct {
	Message         string          `json:"message,omitempty"`
	Mode            string          `json:"mode,omitempty"`
	RequestedSchema json.RawMessage `json:"requestedSchema,omitempty"`
	ElicitationID   string          `json:"elicitationId,omitempty"`
	URL             string          `json:"url,omitempty"`
}

// Validate rejects an elicitation request before queueing any work.
func (r *ElicitationRequest) Validate() error {
	const op = "elicitation.validate"
	if r == nil || r.Message == "" {
		return ValidationError(op, "message", "message is required")
	}
	switch r.Mode {
	case "":
		return ValidationError(op, "mode", "mode is required")
	case ElicitationModeForm:
		if len(r.RequestedSchema) == 0 {
			return ValidationError(op, "requestedSchema", "form mode requires a requested schema")
		}
	case ElicitationModeURL:
		if r.URL == "" {
			return ValidationError(op, "url", "url mode requires a url")
		}
	default:
		return ValidationError(op, "mode", "mode must be form or url")
	}
	return nil
}

// Elicitation actions.
const (
	ElicitationAccept  = "accept"
	ElicitationDecline = "decline"
	ElicitationCancel  = "cancel"
)

// ElicitationResult represents the response to elicitation/create.
type ElicitationResult struct {
	Action  string         `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

package domain

import "context"

// SamplingHandler handles sampling/createMessage requests. Implementations
// delegate to a real model provider.
type SamplingHandler interface {
	CreateMessage(ctx context.Context, params *SamplingRequest) (*SamplingResult, error)
}

// ElicitationHandler handles elicitation/create requests. Implementations
// decide how a human (or policy) answers.
type ElicitationHandler interface {
	Elicit(ctx context.Context, params *ElicitationRequest) (*ElicitationResult, error)
}

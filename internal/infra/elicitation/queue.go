package elicitation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
)

// DefaultWaitTimeout bounds how long a request waits for an operator answer
// before it is cancelled.
const DefaultWaitTimeout = 2 * time.Minute

type pending struct {
	ID        string
	Request   *domain.ElicitationRequest
	CreatedAt time.Time

	schema *jsonschema.Resolved
	done   chan *domain.ElicitationResult
}

// Queue is an approval-queue elicitation handler: requests wait until an
// operator resolves them, or time out as cancelled.
type Queue struct {
	waitTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]*pending
}

type QueueOptions struct {
	WaitTimeout time.Duration
	Logger      *zap.Logger
}

func NewQueue(opts QueueOptions) *Queue {
	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		waitTimeout: waitTimeout,
		logger:      logger.Named("elicitation"),
		pending:     make(map[string]*pending),
	}
}

// Elicit parks the request until Resolve answers it. Form-mode requests have
// their schema resolved eagerly so a broken schema fails the request instead
// of every later answer.
func (q *Queue) Elicit(ctx context.Context, params *domain.ElicitationRequest) (*domain.ElicitationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	entry := &pending{
		ID:        params.ElicitationID,
		Request:   params,
		CreatedAt: time.Now(),
		done:      make(chan *domain.ElicitationResult, 1),
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if params.Mode == domain.ElicitationModeForm {
		resolved, err := resolveSchema(params.RequestedSchema)
		if err != nil {
			return nil, domain.E(domain.CodeInvalidArgument, "elicitation.elicit",
				fmt.Sprintf("requested schema is invalid: %v", err), err)
		}
		entry.schema = resolved
	}

	q.mu.Lock()
	if _, exists := q.pending[entry.ID]; exists {
		q.mu.Unlock()
		return nil, domain.E(domain.CodeFailedPrecond, "elicitation.elicit",
			fmt.Sprintf("elicitation %s is already pending", entry.ID), nil)
	}
	q.pending[entry.ID] = entry
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.pending, entry.ID)
		q.mu.Unlock()
	}()

	q.logger.Info("elicitation pending",
		zap.String("elicitationId", entry.ID),
		zap.String("mode", params.Mode),
	)

	timer := time.NewTimer(q.waitTimeout)
	defer timer.Stop()
	select {
	case result := <-entry.done:
		return result, nil
	case <-timer.C:
		q.logger.Warn("elicitation timed out", zap.String("elicitationId", entry.ID))
		return &domain.ElicitationResult{Action: domain.ElicitationCancel}, nil
	case <-ctx.Done():
		return &domain.ElicitationResult{Action: domain.ElicitationCancel}, nil
	}
}

// Resolve answers one pending elicitation. Accepted form answers are
// validated against the requested schema.
func (q *Queue) Resolve(id, action string, content map[string]any) error {
	const op = "elicitation.resolve"
	switch action {
	case domain.ElicitationAccept, domain.ElicitationDecline, domain.ElicitationCancel:
	default:
		return domain.ValidationError(op, "action", "action must be accept, decline or cancel")
	}

	q.mu.Lock()
	entry, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return domain.E(domain.CodeNotFound, op, fmt.Sprintf("no pending elicitation %s", id), nil)
	}
	if action == domain.ElicitationAccept && entry.schema != nil {
		if err := entry.schema.Validate(content); err != nil {
			// Leave the entry pending so the operator can retry; only the
			// waiter removes it, so a concurrent timeout cannot strand it.
			q.mu.Unlock()
			return domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("content does not match requested schema: %v", err), err)
		}
	}
	delete(q.pending, id)
	q.mu.Unlock()

	result := &domain.ElicitationResult{Action: action}
	if action == domain.ElicitationAccept {
		result.Content = content
	}
	entry.done <- result
	return nil
}

// Pending lists requests currently waiting for an answer.
func (q *Queue) Pending() []domain.ElicitationRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ElicitationRequest, 0, len(q.pending))
	for _, entry := range q.pending {
		req := *entry.Request
		req.ElicitationID = entry.ID
		out = append(out, req)
	}
	return out
}

func resolveSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}

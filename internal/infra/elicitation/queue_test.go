package elicitation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
)

func formRequest(id string) *domain.ElicitationRequest {
	return &domain.ElicitationRequest{
		ElicitationID:   id,
		Message:         "approve this tool call?",
		Mode:            domain.ElicitationModeForm,
		RequestedSchema: json.RawMessage(`{"type":"object","properties":{"approved":{"type":"boolean"}},"required":["approved"]}`),
	}
}

func TestDefaultHandler_CancelsEverything(t *testing.T) {
	handler := NewDefaultHandler(zap.NewNop())

	result, err := handler.Elicit(context.Background(), &domain.ElicitationRequest{
		Message: "proceed?",
		Mode:    domain.ElicitationModeURL,
		URL:     "https://example.com/approve",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ElicitationCancel, result.Action)
}

func TestDefaultHandler_RejectsInvalidRequests(t *testing.T) {
	handler := NewDefaultHandler(zap.NewNop())

	_, err := handler.Elicit(context.Background(), &domain.ElicitationRequest{Mode: domain.ElicitationModeURL})
	require.Error(t, err)
}

func TestQueue_ResolveAccept(t *testing.T) {
	queue := NewQueue(QueueOptions{Logger: zap.NewNop()})

	type outcome struct {
		result *domain.ElicitationResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := queue.Elicit(context.Background(), formRequest("e-1"))
		resultCh <- outcome{result: result, err: err}
	}()

	require.Eventually(t, func() bool {
		return len(queue.Pending()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, queue.Resolve("e-1", domain.ElicitationAccept, map[string]any{"approved": true}))

	got := <-resultCh
	require.NoError(t, got.err)
	require.Equal(t, domain.ElicitationAccept, got.result.Action)
	require.Equal(t, true, got.result.Content["approved"])
	require.Empty(t, queue.Pending())
}

func TestQueue_AcceptContentMustMatchSchema(t *testing.T) {
	queue := NewQueue(QueueOptions{Logger: zap.NewNop()})

	go func() {
		_, _ = queue.Elicit(context.Background(), formRequest("e-2"))
	}()
	require.Eventually(t, func() bool {
		return len(queue.Pending()) == 1
	}, time.Second, 5*time.Millisecond)

	err := queue.Resolve("e-2", domain.ElicitationAccept, map[string]any{"approved": "yes"})
	require.Error(t, err)
	// The request stays pending so the operator can retry.
	require.Len(t, queue.Pending(), 1)

	require.NoError(t, queue.Resolve("e-2", domain.ElicitationDecline, nil))
}

func TestQueue_FailedAcceptDoesNotOutliveWaiter(t *testing.T) {
	queue := NewQueue(QueueOptions{WaitTimeout: 50 * time.Millisecond, Logger: zap.NewNop()})

	type outcome struct {
		result *domain.ElicitationResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := queue.Elicit(context.Background(), formRequest("e-5"))
		resultCh <- outcome{result: result, err: err}
	}()
	require.Eventually(t, func() bool {
		return len(queue.Pending()) == 1
	}, time.Second, 5*time.Millisecond)

	// A failed accept leaves the entry with the waiter, never re-added
	// behind its back.
	err := queue.Resolve("e-5", domain.ElicitationAccept, map[string]any{"approved": "yes"})
	require.Error(t, err)

	got := <-resultCh
	require.NoError(t, got.err)
	require.Equal(t, domain.ElicitationCancel, got.result.Action)

	// Once the waiter has timed out nothing may linger in the queue.
	require.Empty(t, queue.Pending())
	err = queue.Resolve("e-5", domain.ElicitationDecline, nil)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeNotFound, code)
}

func TestQueue_TimesOutAsCancel(t *testing.T) {
	queue := NewQueue(QueueOptions{WaitTimeout: 20 * time.Millisecond, Logger: zap.NewNop()})

	result, err := queue.Elicit(context.Background(), formRequest("e-3"))
	require.NoError(t, err)
	require.Equal(t, domain.ElicitationCancel, result.Action)
	require.Empty(t, queue.Pending())
}

func TestQueue_ResolveUnknownID(t *testing.T) {
	queue := NewQueue(QueueOptions{Logger: zap.NewNop()})

	err := queue.Resolve("nope", domain.ElicitationAccept, nil)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeNotFound, code)
}

func TestQueue_RejectsBadSchemaEagerly(t *testing.T) {
	queue := NewQueue(QueueOptions{Logger: zap.NewNop()})

	_, err := queue.Elicit(context.Background(), &domain.ElicitationRequest{
		Message:         "approve?",
		Mode:            domain.ElicitationModeForm,
		RequestedSchema: json.RawMessage(`{"type":`),
	})
	require.Error(t, err)
	require.Empty(t, queue.Pending())
}

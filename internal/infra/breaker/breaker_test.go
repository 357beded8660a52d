package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
)

var errBackend = errors.New("backend failure")

func newTestBreaker(resetDelay time.Duration) *Breaker {
	return New(Config{
		Name:       "tool_call",
		Timeout:    time.Second,
		ErrorRate:  0.5,
		MinVolume:  10,
		ResetDelay: resetDelay,
		Window:     time.Minute,
	}, zap.NewNop())
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func tripBreaker(t *testing.T, b *Breaker) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Do(ctx, succeed))
	}
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, b.Do(ctx, fail), errBackend)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpensAtErrorRateWithMinVolume(t *testing.T) {
	b := newTestBreaker(time.Hour)
	ctx := context.Background()

	// Nine calls at 100% failure: below min volume, stays closed.
	single := newTestBreaker(time.Hour)
	for i := 0; i < 9; i++ {
		require.ErrorIs(t, single.Do(ctx, fail), errBackend)
	}
	require.Equal(t, StateClosed, single.State())

	// Ten calls at 50% failure trips it.
	tripBreaker(t, b)

	// The next call fails fast without invoking the backend.
	invoked := false
	err := b.Do(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	require.False(t, invoked)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.True(t, domainErr.Retryable)
	require.Contains(t, domainErr.Message, "retry after")
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	tripBreaker(t, b)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Do(context.Background(), succeed))
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	tripBreaker(t, b)

	time.Sleep(20 * time.Millisecond)
	require.ErrorIs(t, b.Do(context.Background(), fail), errBackend)
	require.Equal(t, StateOpen, b.State())

	// Still open: no second trial until the delay elapses again.
	require.ErrorIs(t, b.Do(context.Background(), succeed), domain.ErrCircuitOpen)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	b := New(Config{
		Name:       "tool_call",
		Timeout:    5 * time.Millisecond,
		ErrorRate:  0.5,
		MinVolume:  1,
		ResetDelay: time.Hour,
		Window:     time.Minute,
	}, zap.NewNop())

	err := b.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_TransitionObserver(t *testing.T) {
	b := newTestBreaker(time.Hour)
	var moves []State
	b.OnTransition(func(_ string, _, to State) {
		moves = append(moves, to)
	})
	tripBreaker(t, b)
	require.Equal(t, []State{StateOpen}, moves)
}

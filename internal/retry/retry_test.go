package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return serrors.ErrItemNotFound
	})
	assert.ErrorIs(t, err, serrors.ErrItemNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryableError_EventualSuccess(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return serrors.ErrTimeout
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_RetryableError_AllFail(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return serrors.NewAPIError("telegram", 429, "rate limit")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		return serrors.ErrTimeout
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fastConfig(3), func(ctx context.Context) (float64, error) {
		calls++
		if calls == 1 {
			return 0, serrors.ErrUnavailable
		}
		return 42.5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)
}

func TestDoValue_ZeroAttemptsStillCalls(t *testing.T) {
	calls := 0
	_, err := DoValue(context.Background(), Config{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("generic error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

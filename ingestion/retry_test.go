package ingestion

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), nil, func() error {
		attempts++
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("persistent error")
	err := RetryWithBackoff(context.Background(), nil, func() error {
		attempts++
		return expectedErr
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, attempts, "should attempt exactly maxAttempts times")
}

func TestRetryWithBackoff_Permanent(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("dimension mismatch")
	err := RetryWithBackoff(context.Background(), nil, func() error {
		attempts++
		return Permanent(expectedErr)
	}, 5, time.Millisecond)

	assert.Equal(t, expectedErr, err, "should unwrap the permanent error")
	assert.Equal(t, 1, attempts, "should not retry permanent errors")
	assert.Nil(t, Permanent(nil))
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, nil, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2, "should stop when context is canceled")
}

func TestRetryWithBackoff_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, nil, func() error {
		attempts++
		time.Sleep(30 * time.Millisecond)
		return errors.New("error")
	}, 10, 10*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, attempts, 3, "should stop when context times out")
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), nil, func() error {
			attempts++
			return nil
		}, n, time.Millisecond)

		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Equal(t, 0, attempts)
	}
}

func TestRetryWithBackoff_LogsThroughCallerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).With("identity", "a.txt")

	attempts := 0
	err := RetryWithBackoff(context.Background(), logger, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "will retry")
	assert.Contains(t, buf.String(), "succeeded after retry")
	assert.Contains(t, buf.String(), "identity=a.txt")
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestFailTwiceThenSucceed(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, true, testLogger())

	attempts := 0
	result, err := Result(context.Background(), p, "test", func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", Retryable(errors.New("transient"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestBudgetExhaustedReturnsLastError(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, false, testLogger())

	last := errors.New("still down")
	attempts := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return Retryable(last)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, attempts)
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	p := NewPolicy(5, time.Millisecond, true, testLogger())

	fatal := errors.New("bad request")
	attempts := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return fatal
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryableMarker(t *testing.T) {
	base := errors.New("transient")
	marked := Retryable(base)

	assert.True(t, IsRetryable(marked))
	assert.ErrorIs(t, marked, base)

	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
	assert.Nil(t, Retryable(nil))
}

func TestContextCancelStopsRetrying(t *testing.T) {
	p := NewPolicy(10, 50*time.Millisecond, false, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "test", func(ctx context.Context) error {
		attempts++
		return Retryable(errors.New("transient"))
	})

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 2)
}

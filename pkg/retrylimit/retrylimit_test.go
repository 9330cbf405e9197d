package retrylimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func fastConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestStatusCode(t *testing.T) {
	code, ok := StatusCode(fmt.Errorf("wrapped: %w", restError(503)))
	require.True(t, ok)
	assert.Equal(t, 503, code)

	_, ok = StatusCode(errors.New("plain"))
	assert.False(t, ok)
}

func TestRetriesServerErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return restError(http.StatusBadGateway)
		}
		return nil
	}, nil, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClientErrorsStopImmediately(t *testing.T) {
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		return restError(http.StatusBadRequest)
	}, nil, fastConfig(5))

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFatalErrorStops(t *testing.T) {
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		return &FatalError{Err: errors.New("stop")}
	}, nil, fastConfig(5))

	assert.EqualError(t, err, "stop")
	assert.Equal(t, 1, calls)
}

func TestMaxAttemptsWrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	err := WithRetryConfig(context.Background(), func() error { return boom }, nil, fastConfig(2))

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "max attempts (2) exceeded")
}

func TestRateLimitLowersLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(8, 1, 10, 1, 0.5)
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		if calls == 1 {
			return restError(http.StatusTooManyRequests)
		}
		return nil
	}, lim, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 4.0, lim.CurrentLimit())
	assert.Equal(t, 4, lim.CurrentBurst())
}

func TestLimiterStaysWithinBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(2, 1, 3, 5, 0.1)
	assert.Equal(t, 1.0, float64(lim.MinLimit()))
	assert.Equal(t, 3.0, float64(lim.MaxLimit()))

	lim.RateLimited()
	assert.Equal(t, float64(lim.MinLimit()), lim.CurrentLimit())
	assert.Equal(t, 1, lim.CurrentBurst())
}

func TestRateLimitLogsLimiterState(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	cfg := fastConfig(3)
	cfg.Logger = &log

	lim := NewAdaptiveLimiter(2, 1, 10, 1, 0.5)
	calls := 0
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		if calls == 1 {
			return restError(http.StatusTooManyRequests)
		}
		return nil
	}, lim, cfg)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var limited map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &limited))
	assert.Equal(t, "Rate limited", limited["message"])
	assert.Equal(t, 1.0, limited["rps"])
	assert.Equal(t, 1.0, limited["burst"])
	assert.Equal(t, true, limited["floor"])

	var done map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, "Request succeeded after retry", done["message"])
	assert.Equal(t, 2.0, done["attempt"])
	assert.Equal(t, 10.0, done["max"])
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

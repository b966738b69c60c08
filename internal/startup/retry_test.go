package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab/internal/metrics"
)

var errDown = errors.New("connection refused")

func TestRetryUntilUp(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.StartupConnects.WithLabelValues("test-up", "ok"))
	failBefore := testutil.ToFloat64(metrics.StartupConnects.WithLabelValues("test-up", "error"))

	calls := 0
	err := retry(context.Background(), "test-up", Retry{MaxWait: time.Second, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.StartupConnects.WithLabelValues("test-up", "ok")))
	assert.Equal(t, failBefore+2, testutil.ToFloat64(metrics.StartupConnects.WithLabelValues("test-up", "error")))
}

func TestRetryGivesUpAfterMaxWait(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "test-down", Retry{MaxWait: 20 * time.Millisecond, Backoff: 5 * time.Millisecond}, func(context.Context) error {
		calls++
		return errDown
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry(ctx, "test-cancel", Retry{MaxWait: 2 * time.Hour, Backoff: time.Hour}, func(context.Context) error {
			calls++
			return errDown
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancel")
	}
}

func TestRetryDefaults(t *testing.T) {
	r := Retry{}.withDefaults()
	assert.Equal(t, time.Minute, r.MaxWait)
	assert.Equal(t, 2*time.Second, r.Backoff)
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadyEndpoint_NotReadyUntilMarked(t *testing.T) {
	h := New()

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpoint_HealthyByDefault(t *testing.T) {
	h := New()
	h.AddLivenessCheck("never-run", time.Second, func(context.Context) error {
		return errors.New("should not matter before the first run")
	})

	// A registered check is assumed healthy until it actually runs.
	code, body := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestFailureThreshold(t *testing.T) {
	c := newCheck("flaky", time.Second, func(context.Context) error {
		return errors.New("down")
	})

	ctx := context.Background()
	c.run(ctx)
	c.run(ctx)
	_, failed := c.failure()
	assert.False(t, failed, "two failures stay under the threshold")

	c.run(ctx)
	msg, failed := c.failure()
	assert.True(t, failed)
	assert.Equal(t, "down", msg)
}

func TestRecoveryAfterSingleSuccess(t *testing.T) {
	healthy := false
	c := newCheck("recovering", time.Second, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	ctx := context.Background()
	for range failureThreshold {
		c.run(ctx)
	}
	_, failed := c.failure()
	require.True(t, failed)

	healthy = true
	c.run(ctx)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestIsReady_FailingCheckBlocksReadiness(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	require.True(t, h.IsReady(), "assumed healthy before runs")

	h.mu.RLock()
	c := h.readiness[0]
	h.mu.RUnlock()
	for range failureThreshold {
		c.run(context.Background())
	}

	assert.False(t, h.IsReady())

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestStartStop(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
)

func TestRecoverJSON(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger.Replace(zap.New(core))
	before := testutil.ToFloat64(metrics.HTTPPanics.WithLabelValues(http.MethodPost))

	h := Identity(RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/files", nil)
	req.Header.Set("X-User-ID", "user-42")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPPanics.WithLabelValues(http.MethodPost)))

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "boom", fields["panic"])
	assert.Equal(t, "/api/files", fields["path"])
	assert.Equal(t, "user***", fields["user"])
	assert.Contains(t, fields["stack"], "RecoverJSON")
}

func TestRecoverJSONKeepsStartedResponse(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("partial"))
		panic("late")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}

func TestIdentity(t *testing.T) {
	var got string
	h := Identity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got = GetUserID(r.Context()) }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?user_id=u1", nil))
	assert.Equal(t, "u1", got)

	req := httptest.NewRequest(http.MethodGet, "/ws?user_id=u1", nil)
	req.Header.Set("X-User-ID", "u2")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u2", got, "header wins")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Empty(t, got)
}

func TestRateLimitPerUser(t *testing.T) {
	h := Identity(RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	hit := func(user, ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/files/x?user_id="+user, nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < rateLimitPerUser; i++ {
		require.Equal(t, http.StatusNoContent, hit("u1", "10.0.0.1"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit("u1", "10.0.0.2"))
	assert.Equal(t, http.StatusNoContent, hit("u2", "10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", clientIP(req))
}

func TestMaskUserID(t *testing.T) {
	assert.Equal(t, "-", maskUserID(""))
	assert.Equal(t, "****", maskUserID("u1"))
	assert.Equal(t, "mari***", maskUserID("maria"))
}

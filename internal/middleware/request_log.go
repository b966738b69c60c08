package middleware

import (
	"net/http"
	"time"

	"github.com/collab/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		logger.Debugf("http %s %s status=%d user=%s %v", r.Method, r.URL.Path, rec.status, maskUserID(GetUserID(r.Context())), time.Since(start))
	})
}

// maskUserID маскирует user_id в логах.
func maskUserID(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

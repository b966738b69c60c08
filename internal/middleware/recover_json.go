package middleware

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
)

// responseWriter запоминает статус и то, начат ли ответ; используется RecoverJSON и RequestLog.
// Реализует http.Hijacker для upgrade на websocket.
type responseWriter struct {
	http.ResponseWriter
	status   int
	wrote    bool
	hijacked bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Hijack делегирует к нижележащему ResponseWriter, если он реализует http.Hijacker (нужно для WebSocket).
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		conn, rw, err := h.Hijack()
		if err == nil {
			w.hijacked = true
		}
		return conn, rw, err
	}
	return nil, nil, http.ErrNotSupported
}

// RecoverJSON перехватывает панику обработчика: пишет её в лог с полями запроса
// (method, path, замаскированный user_id, стек), учитывает в collab_http_panics_total
// и, если ответ ещё не начат, отдаёт JSON 500. После hijack (websocket) ответ не пишется.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			metrics.HTTPPanics.WithLabelValues(r.Method).Inc()
			logger.Errorw("panic recovered",
				"panic", fmt.Sprint(rv),
				"method", r.Method,
				"path", r.URL.Path,
				"user", maskUserID(GetUserID(r.Context())),
				"stack", string(debug.Stack()),
			)
			if wrap.wrote || wrap.hijacked {
				return
			}
			wrap.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
			wrap.ResponseWriter.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(wrap.ResponseWriter).Encode(map[string]string{"error": "internal server error"})
		}()
		next.ServeHTTP(wrap, r)
	})
}

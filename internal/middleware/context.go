package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// GetUserID возвращает user_id из контекста (устанавливается Identity).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// Identity кладёт в контекст заявленный клиентом user_id: заголовок X-User-ID или параметр user_id.
// Проверки подлинности нет, значение служит ключом лимитов и логов.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid == "" {
			uid = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if uid != "" {
			r = r.WithContext(context.WithValue(r.Context(), UserIDKey, uid))
		}
		next.ServeHTTP(w, r)
	})
}

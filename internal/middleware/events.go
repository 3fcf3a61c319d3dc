package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// EventsTokenAuth 校验存储桶通知 webhook 携带的共享令牌。
// 期望请求头格式：Authorization: Bearer <token>。
func EventsTokenAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "missing events token")
				return
			}

			got := []byte(strings.TrimSpace(strings.TrimPrefix(authHeader, prefix)))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "invalid events token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

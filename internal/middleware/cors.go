package middleware

import (
	"net/http"
	"strings"
)

// 浏览器只会直接打 API 的这几个方法；对象上传走预签名 URL，
// 不经过本服务，所以没有 PUT。
const (
	corsAllowMethods = "GET,POST,DELETE,OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
)

// CORS 按配置的来源白名单放行跨域请求，"*" 表示放行全部。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		value := strings.TrimSpace(origin)
		switch {
		case value == "":
		case value == "*":
			allowAll = true
		default:
			allowed[value] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			granted := ""
			switch {
			case allowAll:
				granted = "*"
			default:
				if _, ok := allowed[origin]; ok {
					granted = origin
				}
			}

			if granted != "" {
				headers := w.Header()
				headers.Set("Access-Control-Allow-Origin", granted)
				headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
				headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				headers.Set("Access-Control-Max-Age", "600")
				if granted != "*" {
					headers.Add("Vary", "Origin")
					headers.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			// 预检请求到此为止，不进入业务路由
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

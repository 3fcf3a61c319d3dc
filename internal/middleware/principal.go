package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Principal 是经过校验的请求主体。核心逻辑只消费这个类型化的值，
// 不再直接翻动 claims map。
type Principal struct {
	ID      string
	Email   string
	IsAdmin bool
}

// PrincipalContextKey 是存储在 context 中的 Principal 的键。
type PrincipalContextKey struct{}

// GetPrincipal 从 context 中取出经过鉴权的请求主体。
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey{}).(Principal)
	return p, ok
}

// adminGroup 是身份提供方给管理员打的组名。
const adminGroup = "Admins"

// JWTAuth 创建 Bearer JWT 鉴权中间件。
// 支持 JWKS (远程公钥，自动刷新) 和 HMAC (本地 Secret，开发环境)。
// 验证成功后将解析出的 Principal 存入 context。
func JWTAuth(jwksURL, jwtSecret string) func(http.Handler) http.Handler {
	var jwks *keyfunc.JWKS
	var err error

	if jwksURL != "" {
		// 初始化 JWKS，包含自动刷新
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				fmt.Printf("[AuthError] JWKS refresh failed: %v\n", err)
			},
		})
		if err != nil {
			fmt.Printf("[AuthWarning] JWKS init failed (%s): %v\n", jwksURL, err)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization format, expected: Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "empty token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
					if jwtSecret != "" {
						return []byte(jwtSecret), nil
					}
				}
				if jwks != nil {
					return jwks.Keyfunc(token)
				}
				return nil, fmt.Errorf("no suitable verification method")
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaticPrincipal 注入固定主体，供关闭鉴权的开发模式使用。
func StaticPrincipal(p Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), PrincipalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalFromClaims 从 ID token claims 构造类型化主体。
// email 缺失时回退到 cognito:username；组既可能是逗号分隔的字符串，
// 也可能是字符串数组，取决于授权器配置。
func principalFromClaims(claims jwt.MapClaims) (Principal, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("token has no subject")
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["cognito:username"].(string)
	}

	return Principal{
		ID:      sub,
		Email:   email,
		IsAdmin: hasGroup(claims["cognito:groups"], adminGroup),
	}, nil
}

func hasGroup(raw any, group string) bool {
	switch v := raw.(type) {
	case string:
		for _, g := range strings.Split(v, ",") {
			if strings.TrimSpace(g) == group {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if g, ok := item.(string); ok && g == group {
				return true
			}
		}
	}
	return false
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ShareDrop API"`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

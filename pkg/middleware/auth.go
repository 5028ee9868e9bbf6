package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/hlog"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// bearerToken 从 Authorization 头取出 token；格式不对时返回空串
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return "", true
	}
	return strings.TrimSpace(tokenString), true
}

// AuthMiddleware JWT认证中间件，只接受 access token
func AuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, present := bearerToken(r)
			if !present {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}
			if tokenString == "" {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			user, err := jwtService.ExtractUserFromToken(tokenString)
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("❌ Token rejected")
				utils.WriteUnauthorizedResponse(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware 可选的认证中间件（不强制要求认证）
func OptionalAuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, _ := bearerToken(r); tokenString != "" {
				if user, err := jwtService.ExtractUserFromToken(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), UserContextKey, user)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole 要求当前用户角色不低于 min，必须放在 AuthMiddleware 之后
func RequireRole(min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok || user == nil {
				utils.WriteUnauthorizedResponse(w, "Authentication required")
				return
			}
			if !user.Role.AtLeast(min) {
				hlog.FromRequest(r).Warn().
					Str("user", user.Email).
					Str("role", string(user.Role)).
					Str("required", string(min)).
					Msg("🚫 Insufficient role")
				utils.WriteForbiddenResponse(w, fmt.Sprintf("%s role required", min))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.AuthUser, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.AuthUser)
	return user, ok
}

// WithUser 把用户放入 context（测试和内部调用使用）
func WithUser(ctx context.Context, user *models.AuthUser) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.AuthUser, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not authenticated")
	}
	return user, nil
}

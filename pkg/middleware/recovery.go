package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/hlog"
)

// Recovery 恢复中间件，处理panic并返回统一的错误结构
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Bytes("stack", stack).
					Str("path", r.URL.Path).
					Msg("❌ PANIC")

				if cfg.IsDevelopment() {
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR",
						fmt.Sprintf("Internal server error: %v", rec),
						string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

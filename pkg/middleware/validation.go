package middleware

import (
	"mime"
	"net/http"

	"coworking-alliance-backend/pkg/utils"
)

// DefaultMaxBodyBytes 表单和后台编辑的请求体上限
const DefaultMaxBodyBytes int64 = 1 << 20

// ContentTypeJSON 验证带请求体的请求 Content-Type 为 application/json
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			// 空请求体不检查（例如 POST /sync 这类动作）
			if r.ContentLength != 0 {
				contentType := r.Header.Get("Content-Type")
				if contentType == "" {
					utils.WriteBadRequestResponse(w, "Content-Type header is required")
					return
				}
				mediaType, _, err := mime.ParseMediaType(contentType)
				if err != nil || mediaType != "application/json" {
					utils.WriteBadRequestResponse(w, "Content-Type must be application/json")
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize 限制请求体大小
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

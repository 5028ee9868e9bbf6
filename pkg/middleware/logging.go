package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestLogger 把 logger 放入请求 context，并为每个请求输出一行访问日志
func RequestLogger(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			event := hlog.FromRequest(r).Info()
			switch {
			case status >= 500:
				event = hlog.FromRequest(r).Error()
			case status >= 400:
				event = hlog.FromRequest(r).Warn()
			}

			userInfo := "anonymous"
			if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
				userInfo = user.Email
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Str("user", userInfo).
				Str("ip", ClientIP(r)).
				Msg("🌐 Request")
		}),
	}
}

// TrustedClientIP 按可信代理层数把 r.RemoteAddr 改写为客户端地址
//
// 每层代理都向 X-Forwarded-For 末尾追加它看到的上一跳，客户端是从右数第 hops 个条目；
// 更靠左的条目由调用方任意填写，不可信。hops 为 0 时忽略所有转发头。
func TrustedClientIP(hops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hops > 0 {
				if ip := forwardedClient(r.Header.Values("X-Forwarded-For"), hops); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(values []string, hops int) string {
	var chain []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				chain = append(chain, p)
			}
		}
	}
	if len(chain) < hops {
		return ""
	}
	ip := chain[len(chain)-hops]
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

// ClientIP 客户端地址，只取 RemoteAddr（经 TrustedClientIP 处理后）
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

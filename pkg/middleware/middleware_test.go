package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	if user, ok := GetUserFromContext(r.Context()); ok {
		w.Header().Set("X-User", user.Email+"|"+string(user.Role))
	}
	w.WriteHeader(http.StatusNoContent)
}

func newJWT() *utils.JWTService {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return utils.NewJWTServiceWithClock("middleware-secret", func() time.Time { return now })
}

func tokensFor(t *testing.T, j *utils.JWTService, role models.Role) (string, string) {
	t.Helper()
	p := &models.Profile{Email: "ed@example.org", Role: role}
	p.ID = "p-1"
	access, refresh, _, err := j.GenerateTokenPair(p)
	require.NoError(t, err)
	return access, refresh
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

// ============================================================================
// Auth
// ============================================================================

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	j := newJWT()
	access, refresh := tokensFor(t, j, models.RoleEditor)
	h := AuthMiddleware(j)(http.HandlerFunc(okHandler))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + access, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"access token", "Bearer " + access, http.StatusNoContent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/spaces", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
			} else {
				assert.Equal(t, "ed@example.org|editor", rec.Header().Get("X-User"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()
	j := newJWT()
	editor, _ := tokensFor(t, j, models.RoleEditor)
	admin, _ := tokensFor(t, j, models.RoleAdmin)
	h := AuthMiddleware(j)(RequireRole(models.RoleAdmin)(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+editor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// 没有 AuthMiddleware 时直接 401
	rec = httptest.NewRecorder()
	RequireRole(models.RoleEditor)(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	t.Parallel()
	j := newJWT()
	access, _ := tokensFor(t, j, models.RoleMember)
	h := OptionalAuthMiddleware(j)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/handle-space-submission", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-User"))

	req.Header.Set("Authorization", "Bearer "+access)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "ed@example.org|member", rec.Header().Get("X-User"))
}

// ============================================================================
// Request plumbing
// ============================================================================

func TestContentTypeJSON(t *testing.T) {
	t.Parallel()
	h := ContentTypeJSON(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "empty body skips the check")
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Real-IP", "198.51.100.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.10", ClientIP(req), "forwarding headers alone are never trusted")
}

func TestTrustedClientIP(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		hops int
		xff  []string
		want string
	}{
		{"no proxy ignores header", 0, []string{"1.1.1.1"}, "198.51.100.77"},
		{"one proxy takes right-most", 1, []string{"1.1.1.1, 203.0.113.7"}, "203.0.113.7"},
		{"two proxies", 2, []string{"1.1.1.1, 203.0.113.7", "10.0.0.2"}, "203.0.113.7"},
		{"short chain keeps remote addr", 2, []string{"203.0.113.7"}, "198.51.100.77"},
		{"garbage keeps remote addr", 1, []string{"not-an-ip"}, "198.51.100.77"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got string
			h := TrustedClientIP(tc.hops)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "198.51.100.77:4000"
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	var seen string
	h := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/spaces/", nil))
	assert.Equal(t, "/api/spaces", seen)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "/", seen)
}

func TestRecovery(t *testing.T) {
	t.Parallel()
	h := Recovery(&config.Config{Environment: "production"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

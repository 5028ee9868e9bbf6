package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	app    *App
	router http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:        "test",
		Port:               "0",
		BaseURL:            "https://alliance.example.org",
		DatabaseDriver:     config.DriverMemory,
		JWTSecret:          "router-test-secret",
		FallbackAdminEmail: "fallback@example.org",
		RecaptchaMinScore:  0.5,
		AllowedOrigins:     []string{"*"},
		RateLimit: config.RateLimitConfig{
			MaxAttempts:   5,
			EscalateAfter: 10,
			Window:        15 * time.Minute,
			Lockout:       30 * time.Minute,
			LongLockout:   time.Hour,
		},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app := NewAppWithDB(testConfig(), database.NewMemoryDatabase(), func() time.Time { return fixedNow })
	return &testServer{app: app, router: NewRouter(app, zerolog.Nop())}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// tokenFor 写入一个 profile 并签发 access token
func (s *testServer) tokenFor(t *testing.T, email string, role models.Role) string {
	t.Helper()
	p := &models.Profile{Email: email, Role: role}
	require.NoError(t, s.app.Services.Content.Profiles.Create(context.Background(), p))
	access, _, _, err := s.app.JWT.GenerateTokenPair(p)
	require.NoError(t, err)
	return access
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeMap(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

// ============================================================================
// 基础路由
// ============================================================================

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeMap(t, decodeEnvelope(t, rec).Data)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "healthy", data["db_status"])
	assert.Equal(t, "memory", data["database"])
	assert.Equal(t, float64(fixedNow.Unix()), data["timestamp"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, "/functions/v1/apply", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeEnvelope(t, rec).Error.Code)
}

func TestDebugRoutesOnlyInDevelopment(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/debug/env-check", "", nil).Code)

	cfg := testConfig()
	cfg.Environment = "development"
	dev := NewRouter(NewAppWithDB(cfg, database.NewMemoryDatabase(), time.Now), zerolog.Nop())
	rec := httptest.NewRecorder()
	dev.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/env-check", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), cfg.JWTSecret)
}

// ============================================================================
// 函数路由
// ============================================================================

func TestApplyFunction(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/functions/v1/apply", "", map[string]interface{}{
		"name":           "Ann Lee",
		"email":          "Ann@Example.org",
		"company":        "Desk Co",
		"membershipType": "operator",
		"message":        "We run two spaces downtown.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec.Body.Bytes())
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["applicationId"])

	rec = s.do(t, http.MethodPost, "/functions/v1/apply", "", map[string]interface{}{"name": "No Email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeMap(t, rec.Body.Bytes())["error"])
}

func TestFunctionRejectsWrongContentType(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/apply", strings.NewReader(`name=x`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunctionSpamIsRejectedQuietly(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/functions/v1/handle-lead-submission", "", map[string]interface{}{
		"name":     "Bot",
		"email":    "bot@example.org",
		"message":  "hello",
		"honeypot": "filled",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Submission rejected", decodeMap(t, rec.Body.Bytes())["error"])
}

func TestValidateSubmissionRateLimited(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	body := map[string]interface{}{"actionType": "contact", "identifier": "visitor@example.org"}

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/functions/v1/validate-submission", "", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, float64(4-i), decodeMap(t, rec.Body.Bytes())["remaining"])
	}

	rec := s.do(t, http.MethodPost, "/functions/v1/validate-submission", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1800", rec.Header().Get("Retry-After"))
	out := decodeMap(t, rec.Body.Bytes())
	assert.Equal(t, float64(1800), out["retryAfter"])
	assert.Equal(t, "2026-03-01T10:30:00Z", out["blockedUntil"])
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	send := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/validate-submission",
			strings.NewReader(`{"actionType":"contact"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", xff)
		req.RemoteAddr = "198.51.100.77:40000"
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		rec := send(fmt.Sprintf("10.9.0.%d", i))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, http.StatusTooManyRequests, send("10.9.0.99").Code)
}

func TestAdminFunctionsRequireRole(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	editor := s.tokenFor(t, "ed@example.org", models.RoleEditor)
	admin := s.tokenFor(t, "ad@example.org", models.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/functions/v1/sync-google-calendar", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/functions/v1/sync-google-calendar", editor, nil).Code)

	rec := s.do(t, http.MethodPost, "/functions/v1/sync-google-calendar", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "calendar is not configured")
	assert.Contains(t, decodeMap(t, rec.Body.Bytes())["error"], "not connected")

	rec = s.do(t, http.MethodPost, "/functions/v1/invite-admin", admin, map[string]interface{}{
		"email": "new@example.org", "role": "editor",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInviteAdminFunction(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	root := s.tokenFor(t, "root@example.org", models.RoleSuperAdmin)

	rec := s.do(t, http.MethodPost, "/functions/v1/invite-admin", root, map[string]interface{}{
		"email": "new@example.org", "role": "editor",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec.Body.Bytes())
	assert.Equal(t, "new@example.org", body["email"])
	assert.Equal(t, "editor", body["role"])
	assert.NotContains(t, rec.Body.String(), "token")
}

// ============================================================================
// 公开内容
// ============================================================================

func TestPublicSpaces(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ctx := context.Background()
	spaces := s.app.Services.Content.Spaces

	require.NoError(t, spaces.Create(ctx, &models.Space{Name: "Hive Works", City: "Austin", Status: models.SpaceApproved}))
	require.NoError(t, spaces.Create(ctx, &models.Space{Name: "Pending Place", City: "Austin"}))

	rec := s.do(t, http.MethodGet, "/api/public/spaces?city=Austin", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Space
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "hive-works", list[0].Slug)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/public/spaces/hive-works", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/public/spaces/pending-place", "", nil).Code)
}

func TestPublicRSVP(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	capacity := 10
	event := &models.Event{
		Title:       "Spring Mixer",
		StartTime:   fixedNow.Add(72 * time.Hour),
		Capacity:    &capacity,
		IsPublished: true,
	}
	require.NoError(t, s.app.Services.Content.Events.Create(context.Background(), event))

	body := map[string]interface{}{"name": "Ann", "email": "ann@example.org", "guests": 1}
	rec := s.do(t, http.MethodPost, "/api/public/events/spring-mixer/rsvp", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/public/events/spring-mixer/rsvp", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, "/api/public/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Spring Mixer")
}

// ============================================================================
// 管理后台
// ============================================================================

func TestAuthLoginAndMe(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email": "nobody@example.org", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", "", nil).Code)

	token := s.tokenFor(t, "ed@example.org", models.RoleEditor)
	rec = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ed@example.org", decodeMap(t, decodeEnvelope(t, rec).Data)["email"])

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]interface{}{"refresh_token": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminBlogPostCRUD(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	editor := s.tokenFor(t, "ed@example.org", models.RoleEditor)

	rec := s.do(t, http.MethodPost, "/api/admin/blog-posts", editor, map[string]interface{}{
		"title":   "Why Coworking Works",
		"content": "Community first.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post models.BlogPost
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &post))
	assert.Equal(t, "why-coworking-works", post.Slug)
	assert.Equal(t, models.PostDraft, post.Status)

	rec = s.do(t, http.MethodPatch, "/api/admin/blog-posts/"+post.ID, editor, map[string]interface{}{"status": "published"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.BlogPost
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &updated))
	assert.Equal(t, models.PostPublished, updated.Status)
	assert.Equal(t, "Why Coworking Works", updated.Title, "fields absent from the patch are kept")
	require.NotNil(t, updated.PublishedAt)

	rec = s.do(t, http.MethodGet, "/api/admin/blog-posts?status=published", editor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), post.ID)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/public/posts/why-coworking-works", "", nil).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/admin/blog-posts/"+post.ID, editor, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/admin/blog-posts/"+post.ID, editor, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/admin/blog-posts/not-a-uuid", editor, nil).Code)
}

func TestAdminRoleGates(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	editor := s.tokenFor(t, "ed@example.org", models.RoleEditor)
	admin := s.tokenFor(t, "ad@example.org", models.RoleAdmin)

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/api/admin/blog-posts", "", http.StatusUnauthorized},
		{"editor content", "/api/admin/testimonials", editor, http.StatusOK},
		{"editor leads", "/api/admin/leads", editor, http.StatusForbidden},
		{"admin leads", "/api/admin/leads", admin, http.StatusOK},
		{"admin settings", "/api/admin/settings", admin, http.StatusOK},
		{"admin profiles", "/api/admin/profiles", admin, http.StatusForbidden},
	}
	for _, tc := range cases {
		rec := s.do(t, http.MethodGet, tc.path, tc.token, nil)
		assert.Equal(t, tc.status, rec.Code, tc.name)
	}
}

func TestAdminModerateSpace(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := s.tokenFor(t, "ad@example.org", models.RoleAdmin)
	space := &models.Space{Name: "Loft 9", SubmitterEmail: "owner@example.org"}
	require.NoError(t, s.app.Services.Content.Spaces.Create(context.Background(), space))

	rec := s.do(t, http.MethodPost, "/api/admin/spaces/"+space.ID+"/moderate", admin, map[string]interface{}{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/admin/spaces/"+space.ID+"/moderate", admin, map[string]interface{}{"status": "approved"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/public/spaces/loft-9", "", nil).Code)
}

func TestAdminSettingsUpdate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin := s.tokenFor(t, "ad@example.org", models.RoleAdmin)

	rec := s.do(t, http.MethodPut, "/api/admin/settings", admin, map[string]interface{}{
		"notify_leads": []string{" Sales@Example.org ", "sales@example.org"},
		"analytics_id": "G-123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeMap(t, decodeEnvelope(t, rec).Data)
	assert.Equal(t, []interface{}{"sales@example.org"}, data["notify_leads"])

	rec = s.do(t, http.MethodGet, "/api/public/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "G-123", decodeMap(t, decodeEnvelope(t, rec).Data)["analytics_id"])
}

package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "alliance.db"))
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "handler-test-secret")
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	loadConfig = config.LoadConfig
	t.Cleanup(func() {
		routerMu.Lock()
		router = nil
		routerMu.Unlock()
		loadConfig = config.GetCached
		resolveDB = database.GetOptimizedDatabase
	})
}

func call(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.10:4711"
	rec := httptest.NewRecorder()
	Handler(rec, req)
	return rec
}

func apply(t *testing.T, email string) *httptest.ResponseRecorder {
	t.Helper()
	return call(t, http.MethodPost, "/functions/v1/apply", map[string]interface{}{
		"name":           "Ann Lee",
		"email":          email,
		"membershipType": "operator",
		"message":        "We run two spaces downtown.",
	})
}

func TestHandler_SurvivesIdleSweepBetweenInvocations(t *testing.T) {
	setupEnv(t)
	vo := database.NewVercelOptimizer(database.NewDatabase)
	resolveDB = vo.GetOptimizedConnection
	t.Cleanup(func() { vo.CleanupExpiredConnections(time.Now().Add(24 * time.Hour)) })

	rec := call(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"db_status":"healthy"`)

	rec = apply(t, "ann@example.org")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 热实例闲置超过空闲超时，后台清理关掉了连接
	assert.Equal(t, 1, vo.CleanupExpiredConnections(time.Now().Add(11*time.Minute)))

	rec = apply(t, "bob@example.org")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db_status":"healthy"`)
	assert.Equal(t, 1, vo.GetStats()["total_connections"])
}

func TestHandler_RetriesAfterFailedInit(t *testing.T) {
	setupEnv(t)
	resolveDB = func(database.DatabaseConfig) (database.DatabaseInterface, error) {
		return nil, errors.New("dial tcp db.internal:5432: connection refused")
	}

	rec := call(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "SERVICE_UNAVAILABLE")
	assert.NotContains(t, rec.Body.String(), "db.internal")

	vo := database.NewVercelOptimizer(database.NewDatabase)
	resolveDB = vo.GetOptimizedConnection
	t.Cleanup(func() { vo.CleanupExpiredConnections(time.Now().Add(24 * time.Hour)) })

	rec = call(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandler_HidesConfigurationErrors(t *testing.T) {
	setupEnv(t)
	t.Setenv("DATABASE_DRIVER", "postgres")

	rec := call(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "POSTGRES_DSN")
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/ratelimit"
	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{utils.ErrEmptyBody, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w (honeypot)", services.ErrSpamDetected), http.StatusBadRequest, "SPAM_DETECTED"},
		{services.ErrCalendarNotConnected, http.StatusBadRequest, "CALENDAR_NOT_CONNECTED"},
		{services.ErrInviteExpired, http.StatusUnauthorized, "UNAUTHORIZED"},
		{services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("spaces x: %w", services.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{services.ErrAlreadyReviewed, http.StatusConflict, "CONFLICT"},
		{services.ErrInvalidTransition, http.StatusConflict, "CONFLICT"},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestWriteFunctionErrorHidesInternals(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/apply", nil)

	rec := httptest.NewRecorder()
	writeFunctionError(rec, req, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")

	rec = httptest.NewRecorder()
	writeFunctionError(rec, req, fmt.Errorf("%w (banned_keyword)", services.ErrSpamDetected))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "banned_keyword")
}

func TestWriteAPIErrorRateLimited(t *testing.T) {
	t.Parallel()
	until := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	err := &services.RateLimitError{Decision: ratelimit.Decision{BlockedUntil: &until, RetryAfter: 90 * time.Second}}

	rec := httptest.NewRecorder()
	writeAPIError(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), err)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))

	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.Equal(t, "2026-03-01T10:30:00Z", body.Error.Details)
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()
	var v map[string]interface{}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := decodeBody(req, &v)
	assert.ErrorIs(t, err, services.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ann"}`))
	require.NoError(t, decodeBody(req, &v))
	assert.Equal(t, "Ann", v["name"])
}

func TestFilterValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, true, filterValue("TRUE"))
	assert.Equal(t, false, filterValue("false"))
	assert.Equal(t, "approved", filterValue("approved"))
}

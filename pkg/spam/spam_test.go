package spam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	result *RecaptchaResult
	err    error
}

func (s *stubVerifier) Verify(context.Context, string, string) (*RecaptchaResult, error) {
	return s.result, s.err
}

func spamLogs(t *testing.T, db database.DatabaseInterface) []models.SpamLog {
	t.Helper()
	var rows []models.SpamLog
	require.NoError(t, db.Find(context.Background(), &rows, database.Filter{}))
	return rows
}

// ============================================================================
// Checker
// ============================================================================

func TestCheck_HoneypotIsDetectedAndLogged(t *testing.T) {
	t.Parallel()
	db := database.NewMemoryDatabase()
	c := NewChecker(db, nil, 0.5, nil)

	v, err := c.Check(context.Background(), Submission{
		ActionType: "contact",
		Identifier: "203.0.113.9",
		Honeypot:   "http://bot.example",
		Content:    []string{"hello"},
		Payload:    map[string]interface{}{"name": "Bot"},
		IPAddress:  "203.0.113.9",
	})
	require.NoError(t, err)
	assert.True(t, v.Spam)
	assert.Equal(t, ReasonHoneypot, v.Reason)

	logs := spamLogs(t, db)
	require.Len(t, logs, 1)
	assert.Equal(t, "contact", logs[0].ActionType)
	assert.Equal(t, ReasonHoneypot, logs[0].Reason)
	assert.Equal(t, "Bot", logs[0].Payload["name"])
}

func TestCheck_CleanSubmissionIsNotLogged(t *testing.T) {
	t.Parallel()
	db := database.NewMemoryDatabase()
	c := NewChecker(db, &stubVerifier{result: &RecaptchaResult{Success: true, Score: 0.9}}, 0.5, nil)

	v, err := c.Check(context.Background(), Submission{
		ActionType:     "apply",
		Identifier:     "a@example.com",
		RecaptchaToken: "tok",
		Content:        []string{"We run a 40 desk space, see https://desks.example"},
	})
	require.NoError(t, err)
	assert.False(t, v.Spam)
	assert.Empty(t, spamLogs(t, db))
}

func TestCheck_Heuristics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		reason  string
	}{
		{"too many links", "http://a.x http://b.x https://c.x www.d.x", ReasonTooManyLinks},
		{"three links pass", "http://a.x http://b.x https://c.x", ""},
		{"scheme and www count once", "https://www.a.x https://www.b.x", ""},
		{"four www links", "https://www.a.x www.b.x HTTP://www.c.x https://www.d.x/path", ReasonTooManyLinks},
		{"banned keyword", "Best CASINO bonus", ReasonBannedKeyword},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewChecker(database.NewMemoryDatabase(), nil, 0.5, nil)
			v, err := c.Check(context.Background(), Submission{ActionType: "contact", Content: []string{tc.content}})
			require.NoError(t, err)
			assert.Equal(t, tc.reason != "", v.Spam)
			assert.Equal(t, tc.reason, v.Reason)
		})
	}
}

func TestCheck_SpaceListingWithWebsiteIsClean(t *testing.T) {
	t.Parallel()
	db := database.NewMemoryDatabase()
	c := NewChecker(db, nil, 0.5, nil)

	v, err := c.Check(context.Background(), Submission{
		ActionType: "space_submission",
		Content:    []string{"Acme Cowork", "Pricing at https://www.acme.com/pricing", "https://www.acme.com"},
	})
	require.NoError(t, err)
	assert.False(t, v.Spam)
	assert.Empty(t, spamLogs(t, db))
}

func TestCheck_Recaptcha(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	low := NewChecker(database.NewMemoryDatabase(), &stubVerifier{result: &RecaptchaResult{Success: true, Score: 0.2}}, 0.5, nil)
	v, err := low.Check(ctx, Submission{RecaptchaToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, ReasonLowScore, v.Reason)
	require.NotNil(t, v.Score)
	assert.InDelta(t, 0.2, *v.Score, 0.0001)

	missing := NewChecker(database.NewMemoryDatabase(), &stubVerifier{}, 0.5, nil)
	v, err = missing.Check(ctx, Submission{})
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingToken, v.Reason)

	failed := NewChecker(database.NewMemoryDatabase(), &stubVerifier{result: &RecaptchaResult{Success: false}}, 0.5, nil)
	v, err = failed.Check(ctx, Submission{RecaptchaToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, ReasonRecaptchaFailed, v.Reason)
}

// ============================================================================
// Recaptcha client
// ============================================================================

func TestRecaptcha_Verify(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("secret"))
		assert.Equal(t, "token-1", r.PostForm.Get("response"))
		assert.Equal(t, "198.51.100.4", r.PostForm.Get("remoteip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"score":0.7,"action":"contact","error-codes":[]}`))
	}))
	defer srv.Close()

	res, err := NewRecaptcha("secret", srv.URL).Verify(context.Background(), "token-1", "198.51.100.4")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 0.7, res.Score, 0.0001)
	assert.Equal(t, "contact", res.Action)
}

func TestRecaptcha_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRecaptcha("secret", srv.URL).Verify(context.Background(), "t", "")
	assert.Error(t, err)
}

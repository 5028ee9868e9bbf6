package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMailer collects sent messages
type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func addProfile(t *testing.T, db database.DatabaseInterface, email string, role models.Role) {
	t.Helper()
	require.NoError(t, db.Insert(context.Background(), &models.Profile{Email: email, Role: role}))
}

// ============================================================================
// Resolver
// ============================================================================

func TestResolver_FallsBackToSuperAdminsThenFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	r := NewResolver(db, "fallback@example.org")

	got, err := r.Recipients(ctx, models.NotifyApplications)
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback@example.org"}, got, "nothing configured")

	addProfile(t, db, "editor@example.org", models.RoleEditor)
	addProfile(t, db, " Root@Example.org ", models.RoleSuperAdmin)
	addProfile(t, db, "second@example.org", models.RoleSuperAdmin)

	got, err = r.Recipients(ctx, models.NotifyApplications)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root@example.org", "second@example.org"}, got)
}

func TestResolver_OverrideListsWin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	addProfile(t, db, "root@example.org", models.RoleSuperAdmin)

	token := &models.AdminToken{
		NotifyGeneral: models.StringList{"general@example.org"},
		NotifyLeads:   models.StringList{"Leads@Example.org", "leads@example.org", "not-an-email"},
	}
	token.ID = models.AdminTokenID
	require.NoError(t, db.Insert(ctx, token))

	r := NewResolver(db, "")

	got, err := r.Recipients(ctx, models.NotifyLeads)
	require.NoError(t, err)
	assert.Equal(t, []string{"leads@example.org"}, got)

	got, err = r.Recipients(ctx, models.NotifySpaces)
	require.NoError(t, err)
	assert.Equal(t, []string{"general@example.org"}, got, "empty kind list uses the general list")
}

func TestNormalizeAddresses(t *testing.T) {
	t.Parallel()
	got := NormalizeAddresses([]string{"", "  A@B.co ", "a@b.co", "Name <x@y.co>", "x@y.co"})
	assert.Equal(t, []string{"a@b.co", "x@y.co"}, got)
}

// ============================================================================
// Notifier
// ============================================================================

func TestNotifier_NotifyAdminsRendersTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := database.NewMemoryDatabase()
	mailer := &recordingMailer{}
	n := NewNotifier(NewResolver(db, "fallback@example.org"), mailer)

	app := &models.PendingApplication{Name: "Ada <script>", Email: "ada@example.org", Company: "Engines"}
	require.NoError(t, n.NotifyAdmins(ctx, models.NotifyApplications, "New application", TmplAdminApplication, app))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"fallback@example.org"}, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTML, "Engines")
	assert.Contains(t, mailer.sent[0].HTML, "Ada &lt;script&gt;")
}

func TestNotifier_SendToRejectsInvalidAddress(t *testing.T) {
	t.Parallel()
	mailer := &recordingMailer{}
	n := NewNotifier(NewResolver(database.NewMemoryDatabase(), ""), mailer)

	err := n.SendTo(context.Background(), "nope", "x", TmplSpaceApproved, &models.Space{Name: "Hub"})
	assert.Error(t, err)
	assert.Empty(t, mailer.sent)
}

func TestRender_AllTemplates(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	event := &models.Event{Title: "Mixer", StartTime: start, Location: "Main St"}
	data := map[string]interface{}{
		TmplAdminApplication:    &models.PendingApplication{Name: "A"},
		TmplAdminSpace:          &models.Space{Name: "S"},
		TmplAdminLead:           &models.Lead{Name: "L", Source: models.LeadContact},
		TmplAdminExpert:         &models.Lead{Name: "E", Details: models.JSONMap{"expertise": "tax"}},
		TmplApplicationReceived: &models.PendingApplication{Name: "A"},
		TmplApplicationApproved: &models.PendingApplication{Name: "A"},
		TmplApplicationRejected: &models.PendingApplication{Name: "A", ReviewNotes: "later"},
		TmplSpaceReceived:       &models.Space{Name: "S"},
		TmplSpaceApproved:       &models.Space{Name: "S"},
		TmplSpaceRejected:       &models.Space{Name: "S", RejectionReason: "dup"},
		TmplAdminInvite:         map[string]interface{}{"Role": "editor", "InviteURL": "https://x/accept?token=t", "ExpiresAt": start},
		TmplRsvpConfirmation:    map[string]interface{}{"Event": event, "Rsvp": &models.Rsvp{Name: "R"}},
		TmplEventInvite:         map[string]interface{}{"Event": event, "Message": "Join us", "URL": "https://x/events/mixer"},
	}
	require.Len(t, data, len(bodies))
	for name, d := range data {
		html, err := Render(name, d)
		require.NoError(t, err, name)
		assert.Contains(t, html, "Coworking Alliance", name)
	}

	_, err := Render("missing", nil)
	assert.Error(t, err)
}

// ============================================================================
// Resend mailer
// ============================================================================

func fastMailer(url string) *ResendMailer {
	m := NewResendMailer("re_test", "Alliance <hello@example.org>", url)
	m.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return m
}

func TestResendMailer_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body["subject"])

		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	err := fastMailer(srv.URL).Send(context.Background(), Message{To: []string{"a@b.co"}, Subject: "Hello", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResendMailer_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	err := fastMailer(srv.URL).Send(context.Background(), Message{To: []string{"a@b.co"}, Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResendMailer_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := fastMailer(srv.URL).Send(context.Background(), Message{To: []string{"a@b.co"}, Subject: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "first try plus three retries")
}

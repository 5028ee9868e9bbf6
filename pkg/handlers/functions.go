package handlers

import (
	"net/http"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/middleware"
	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"
)

// FunctionsHandler /functions/v1/* 路由，保持前端既有的函数调用契约
type FunctionsHandler struct {
	config *config.Config
	svc    *services.Services
}

// NewFunctionsHandler 创建函数路由处理器
func NewFunctionsHandler(cfg *config.Config, svc *services.Services) *FunctionsHandler {
	return &FunctionsHandler{config: cfg, svc: svc}
}

// fillMeta 请求来源信息不信任请求体，只从连接和请求头取
func fillMeta(r *http.Request, m *services.SubmissionMeta) {
	m.IPAddress = middleware.ClientIP(r)
	m.UserAgent = r.UserAgent()
}

// POST /functions/v1/apply
func (h *FunctionsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var in services.ApplyInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	app, err := h.svc.Applications.Submit(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"applicationId": app.ID,
		"message":       "Application submitted successfully",
	})
}

// POST /functions/v1/handle-space-submission
func (h *FunctionsHandler) SpaceSubmission(w http.ResponseWriter, r *http.Request) {
	var in services.SpaceSubmission
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	owner, _ := middleware.GetUserFromContext(r.Context())
	space, err := h.svc.Spaces.Submit(r.Context(), owner, in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"spaceId": space.ID,
		"slug":    space.Slug,
		"status":  space.Status,
		"message": "Space submitted for review",
	})
}

// POST /functions/v1/handle-lead-submission
func (h *FunctionsHandler) LeadSubmission(w http.ResponseWriter, r *http.Request) {
	var in services.LeadInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	lead, err := h.svc.Leads.Submit(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{"leadId": lead.ID})
}

// POST /functions/v1/handle-expert-submission
func (h *FunctionsHandler) ExpertSubmission(w http.ResponseWriter, r *http.Request) {
	var in services.ExpertInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	lead, err := h.svc.Leads.SubmitExpert(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{"leadId": lead.ID})
}

// POST /functions/v1/validate-submission
func (h *FunctionsHandler) ValidateSubmission(w http.ResponseWriter, r *http.Request) {
	var in services.ValidateInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	res, err := h.svc.Submissions.Validate(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"allowed":   res.Allowed,
		"attempts":  res.Attempts,
		"remaining": res.Remaining,
	})
}

// POST /functions/v1/invite-admin (super_admin)
func (h *FunctionsHandler) InviteAdmin(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	var in services.InviteInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}

	res, err := h.svc.Admins.Invite(r.Context(), user, in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"profileId": res.Profile.ID,
		"email":     res.Profile.Email,
		"role":      res.Profile.Role,
		"expiresAt": res.ExpiresAt,
	})
}

// POST /functions/v1/approve-application (admin)
func (h *FunctionsHandler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	var in services.ReviewInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	if in.Action == "" {
		in.Action = services.ActionApprove
	}

	app, err := h.svc.Applications.Review(r.Context(), user, in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{"application": app})
}

// POST /functions/v1/notify-space-approval (admin)
func (h *FunctionsHandler) NotifySpaceApproval(w http.ResponseWriter, r *http.Request) {
	var in services.ModerationInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}

	space, err := h.svc.Spaces.Moderate(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{"space": space})
}

// POST /functions/v1/create-calendar-event (admin)
func (h *FunctionsHandler) CreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var in services.CalendarEventInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}

	event, remote, err := h.svc.Events.PushToCalendar(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	fields := map[string]interface{}{
		"googleEventId": remote.ID,
		"htmlLink":      remote.HTMLLink,
	}
	if event != nil {
		fields["event"] = event
	}
	utils.WriteFunctionJSON(w, http.StatusOK, fields)
}

// POST /functions/v1/sync-google-calendar (admin)
func (h *FunctionsHandler) SyncGoogleCalendar(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Events.SyncCalendar(r.Context())
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"created": res.Created,
		"updated": res.Updated,
		"skipped": res.Skipped,
	})
}

// POST /functions/v1/add-calendar-attendee (admin)
func (h *FunctionsHandler) AddCalendarAttendee(w http.ResponseWriter, r *http.Request) {
	var in services.AttendeeInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}

	added, err := h.svc.Events.AddAttendee(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{"added": added})
}

// POST /functions/v1/exchange-google-token (admin)
func (h *FunctionsHandler) ExchangeGoogleToken(w http.ResponseWriter, r *http.Request) {
	var in services.ExchangeInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}
	if in.RedirectURI == "" {
		in.RedirectURI = h.config.GoogleRedirectURI
	}

	settings, err := h.svc.Settings.ExchangeGoogleCode(r.Context(), in)
	if err != nil {
		writeFunctionError(w, r, err)
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"calendarConnected": settings.CalendarConnected,
		"tokenExpiry":       settings.TokenExpiry,
	})
}

// POST /functions/v1/send-event-invites (admin)
//
// 部分收件人失败时仍返回 200，失败列表在 failed 中；全部失败返回 502
func (h *FunctionsHandler) SendEventInvites(w http.ResponseWriter, r *http.Request) {
	var in services.InviteEmailsInput
	if err := decodeBody(r, &in); err != nil {
		writeFunctionError(w, r, err)
		return
	}

	res, err := h.svc.Events.SendInvites(r.Context(), in)
	if res == nil {
		writeFunctionError(w, r, err)
		return
	}
	if err != nil && res.Sent == 0 {
		utils.WriteFunctionError(w, http.StatusBadGateway, "Failed to send invites")
		return
	}
	utils.WriteFunctionJSON(w, http.StatusOK, map[string]interface{}{
		"sent":   res.Sent,
		"failed": res.Failed,
	})
}

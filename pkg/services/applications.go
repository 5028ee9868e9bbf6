package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"

	"github.com/rs/zerolog/log"
)

// ApplyInput apply 函数请求体
type ApplyInput struct {
	SubmissionMeta
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Company        string `json:"company"`
	Website        string `json:"website"`
	MembershipType string `json:"membershipType"`
	Message        string `json:"message"`
}

// ReviewAction 审核动作
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
)

// ReviewInput approve-application 请求体
type ReviewInput struct {
	ApplicationID string       `json:"applicationId"`
	Action        ReviewAction `json:"action"`
	Notes         string       `json:"notes"`
}

// ApplicationService 会员申请流程
type ApplicationService struct {
	db       database.DatabaseInterface
	notifier *notify.Notifier
	guard    *SubmissionService
	apps     *Collection[models.PendingApplication, *models.PendingApplication]
	profiles *Collection[models.Profile, *models.Profile]
	now      func() time.Time
}

// Submit 创建待审核申请，确认邮件给申请人并通知管理员
func (s *ApplicationService) Submit(ctx context.Context, in ApplyInput) (*models.PendingApplication, error) {
	if _, err := s.guard.Check(ctx, Guard{
		ActionType: "apply",
		Meta:       in.SubmissionMeta,
		Content:    []string{in.Name, in.Company, in.Website, in.Message},
		Payload:    in,
	}); err != nil {
		return nil, err
	}

	app := &models.PendingApplication{
		Name:           strings.TrimSpace(in.Name),
		Email:          in.Email,
		Phone:          strings.TrimSpace(in.Phone),
		Company:        strings.TrimSpace(in.Company),
		Website:        strings.TrimSpace(in.Website),
		MembershipType: strings.TrimSpace(in.MembershipType),
		Message:        strings.TrimSpace(in.Message),
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}

	log.Info().Str("application_id", app.ID).Str("email", app.Email).Msg("📝 Membership application received")

	_ = s.notifier.SendTo(ctx, app.Email, "We received your application", notify.TmplApplicationReceived, app)
	_ = s.notifier.NotifyAdmins(ctx, models.NotifyApplications,
		fmt.Sprintf("New membership application: %s", app.Name), notify.TmplAdminApplication, app)
	return app, nil
}

// Review 审核申请，只能从 pending 审核一次
func (s *ApplicationService) Review(ctx context.Context, reviewer *models.AuthUser, in ReviewInput) (*models.PendingApplication, error) {
	if in.ApplicationID == "" {
		return nil, invalidf("applicationId is required")
	}
	if in.Action != ActionApprove && in.Action != ActionReject {
		return nil, invalidf("action must be approve or reject")
	}

	app, err := s.apps.Get(ctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationPending {
		return nil, fmt.Errorf("application %s is %s: %w", app.ID, app.Status, ErrAlreadyReviewed)
	}

	now := s.now().UTC()
	app.ReviewNotes = strings.TrimSpace(in.Notes)
	app.ReviewedAt = &now
	if reviewer != nil {
		id := reviewer.ID
		app.ReviewedBy = &id
	}

	if in.Action == ActionApprove {
		profile, err := s.ensureMember(ctx, app)
		if err != nil {
			return nil, err
		}
		app.ProfileID = &profile.ID
		app.Status = models.ApplicationApproved
	} else {
		app.Status = models.ApplicationRejected
	}

	if err := s.db.Update(ctx, app); err != nil {
		return nil, storeError(err, "update application %s", app.ID)
	}

	log.Info().
		Str("application_id", app.ID).
		Str("status", string(app.Status)).
		Msg("✅ Application reviewed")

	if app.Status == models.ApplicationApproved {
		_ = s.notifier.SendTo(ctx, app.Email, "Welcome to the Coworking Alliance", notify.TmplApplicationApproved, app)
	} else {
		_ = s.notifier.SendTo(ctx, app.Email, "Your Coworking Alliance application", notify.TmplApplicationRejected, app)
	}
	return app, nil
}

// ensureMember 申请人没有 profile 时创建 member
func (s *ApplicationService) ensureMember(ctx context.Context, app *models.PendingApplication) (*models.Profile, error) {
	existing, err := s.profiles.FindOne(ctx, map[string]interface{}{"email": app.Email})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	profile := &models.Profile{
		Email:    app.Email,
		FullName: app.Name,
		Role:     models.RoleMember,
		Phone:    app.Phone,
		Company:  app.Company,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

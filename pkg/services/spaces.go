package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"

	"github.com/rs/zerolog/log"
)

// SpaceSubmission handle-space-submission 请求体
type SpaceSubmission struct {
	SubmissionMeta
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Address        string   `json:"address"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	ZipCode        string   `json:"zipCode"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Website        string   `json:"website"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email"`
	Amenities      []string `json:"amenities"`
	Images         []string `json:"images"`
	PriceRange     string   `json:"priceRange"`
	SubmitterName  string   `json:"submitterName"`
	SubmitterEmail string   `json:"submitterEmail"`
}

// ModerationInput notify-space-approval 请求体
type ModerationInput struct {
	SpaceID string             `json:"spaceId"`
	Status  models.SpaceStatus `json:"status"`
	Reason  string             `json:"reason"`
}

// SpaceService 空间目录提交与审核
type SpaceService struct {
	db       database.DatabaseInterface
	notifier *notify.Notifier
	guard    *SubmissionService
	spaces   *Collection[models.Space, *models.Space]
	profiles *Collection[models.Profile, *models.Profile]
	now      func() time.Time
}

// Submit 创建待审核空间；登录用户提交时记录 owner
func (s *SpaceService) Submit(ctx context.Context, owner *models.AuthUser, in SpaceSubmission) (*models.Space, error) {
	if _, err := s.guard.Check(ctx, Guard{
		ActionType: "space_submission",
		Meta:       in.SubmissionMeta,
		Content:    []string{in.Name, in.Description, in.Website},
		Payload:    in,
	}); err != nil {
		return nil, err
	}

	submitterEmail := in.SubmitterEmail
	submitterName := strings.TrimSpace(in.SubmitterName)
	if owner != nil && strings.TrimSpace(submitterEmail) == "" {
		submitterEmail = owner.Email
	}
	addr, err := requireEmail("submitterEmail", submitterEmail)
	if err != nil {
		return nil, err
	}

	space := &models.Space{
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		State:          strings.TrimSpace(in.State),
		ZipCode:        strings.TrimSpace(in.ZipCode),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		Website:        strings.TrimSpace(in.Website),
		Phone:          strings.TrimSpace(in.Phone),
		Email:          strings.TrimSpace(strings.ToLower(in.Email)),
		Amenities:      models.StringList(in.Amenities),
		Images:         models.StringList(in.Images),
		PriceRange:     strings.TrimSpace(in.PriceRange),
		SubmitterName:  submitterName,
		SubmitterEmail: addr,
		Status:         models.SpacePending,
	}
	if owner != nil {
		id := owner.ID
		space.OwnerID = &id
	}
	if err := s.spaces.Create(ctx, space); err != nil {
		return nil, err
	}

	log.Info().Str("space_id", space.ID).Str("name", space.Name).Msg("🏢 Space submitted for review")

	_ = s.notifier.NotifyAdmins(ctx, models.NotifySpaces,
		fmt.Sprintf("New space submission: %s", space.Name), notify.TmplAdminSpace, space)
	_ = s.notifier.SendTo(ctx, space.SubmitterEmail, "We received your space listing", notify.TmplSpaceReceived, space)
	return space, nil
}

// Moderate 审核空间：approved / rejected，拒绝与当前状态相同的变更
func (s *SpaceService) Moderate(ctx context.Context, in ModerationInput) (*models.Space, error) {
	if in.SpaceID == "" {
		return nil, invalidf("spaceId is required")
	}
	if in.Status != models.SpaceApproved && in.Status != models.SpaceRejected {
		return nil, invalidf("status must be approved or rejected")
	}

	space, err := s.spaces.Get(ctx, in.SpaceID)
	if err != nil {
		return nil, err
	}
	if space.Status == in.Status {
		return nil, fmt.Errorf("space %s is already %s: %w", space.ID, space.Status, ErrInvalidTransition)
	}

	space.Status = in.Status
	if in.Status == models.SpaceApproved {
		now := s.now().UTC()
		space.ApprovedAt = &now
		space.RejectionReason = ""
	} else {
		space.ApprovedAt = nil
		space.RejectionReason = strings.TrimSpace(in.Reason)
	}
	if err := s.db.Update(ctx, space); err != nil {
		return nil, storeError(err, "update space %s", space.ID)
	}

	log.Info().Str("space_id", space.ID).Str("status", string(space.Status)).Msg("🏢 Space moderated")

	to := space.ContactEmail()
	if to == "" && space.OwnerID != nil {
		if owner, err := s.profiles.Get(ctx, *space.OwnerID); err == nil {
			to = owner.Email
		}
	}
	if to == "" {
		log.Warn().Str("space_id", space.ID).Msg("⚠️  Space has no contact address, moderation email skipped")
		return space, nil
	}
	if space.Status == models.SpaceApproved {
		_ = s.notifier.SendTo(ctx, to, fmt.Sprintf("%s is now listed", space.Name), notify.TmplSpaceApproved, space)
	} else {
		_ = s.notifier.SendTo(ctx, to, fmt.Sprintf("Update on your listing for %s", space.Name), notify.TmplSpaceRejected, space)
	}
	return space, nil
}

package services

import (
	"context"
	"fmt"
	"strings"

	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"

	"github.com/rs/zerolog/log"
)

// LeadInput handle-lead-submission 请求体
type LeadInput struct {
	SubmissionMeta
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Message  string `json:"message"`
	Source   string `json:"source"`
	Interest string `json:"interest"`
}

// ExpertInput handle-expert-submission 请求体
type ExpertInput struct {
	SubmissionMeta
	Name            string                 `json:"name"`
	Email           string                 `json:"email"`
	Phone           string                 `json:"phone"`
	Company         string                 `json:"company"`
	Message         string                 `json:"message"`
	Expertise       string                 `json:"expertise"`
	Specialties     []string               `json:"specialties"`
	Website         string                 `json:"website"`
	LinkedIn        string                 `json:"linkedin"`
	YearsExperience int                    `json:"yearsExperience"`
	Details         map[string]interface{} `json:"details"`
}

// LeadService 线索与专家申请
type LeadService struct {
	notifier *notify.Notifier
	guard    *SubmissionService
	leads    *Collection[models.Lead, *models.Lead]
}

// Submit 保存线索并通知 leads 类收件人
func (s *LeadService) Submit(ctx context.Context, in LeadInput) (*models.Lead, error) {
	source := models.LeadSource(strings.ToLower(strings.TrimSpace(in.Source)))
	if source == "" {
		source = models.LeadContact
	}
	if source == models.LeadExpert || !source.Valid() {
		return nil, invalidf("source must be contact, landlord or newsletter")
	}

	if _, err := s.guard.Check(ctx, Guard{
		ActionType: "lead_" + string(source),
		Meta:       in.SubmissionMeta,
		Content:    []string{in.Name, in.Company, in.Message},
		Payload:    in,
	}); err != nil {
		return nil, err
	}

	lead := &models.Lead{
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Phone:    strings.TrimSpace(in.Phone),
		Company:  strings.TrimSpace(in.Company),
		Message:  strings.TrimSpace(in.Message),
		Source:   source,
		Interest: strings.TrimSpace(in.Interest),
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, err
	}

	log.Info().Str("lead_id", lead.ID).Str("source", string(lead.Source)).Msg("📥 Lead captured")
	_ = s.notifier.NotifyAdmins(ctx, models.NotifyLeads,
		fmt.Sprintf("New %s lead: %s", lead.Source, lead.Name), notify.TmplAdminLead, lead)
	return lead, nil
}

// SubmitExpert 专家申请以 source=expert 的线索保存，结构化信息放入 details
func (s *LeadService) SubmitExpert(ctx context.Context, in ExpertInput) (*models.Lead, error) {
	if strings.TrimSpace(in.Expertise) == "" {
		return nil, invalidf("expertise is required")
	}
	if _, err := s.guard.Check(ctx, Guard{
		ActionType: "expert",
		Meta:       in.SubmissionMeta,
		Content:    []string{in.Name, in.Company, in.Message, in.Website, in.LinkedIn},
		Payload:    in,
	}); err != nil {
		return nil, err
	}

	details := models.JSONMap{}
	for k, v := range in.Details {
		details[k] = v
	}
	details["expertise"] = strings.TrimSpace(in.Expertise)
	if len(in.Specialties) > 0 {
		details["specialties"] = in.Specialties
	}
	if in.Website != "" {
		details["website"] = strings.TrimSpace(in.Website)
	}
	if in.LinkedIn != "" {
		details["linkedin"] = strings.TrimSpace(in.LinkedIn)
	}
	if in.YearsExperience > 0 {
		details["years_experience"] = in.YearsExperience
	}

	lead := &models.Lead{
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Phone:    strings.TrimSpace(in.Phone),
		Company:  strings.TrimSpace(in.Company),
		Message:  strings.TrimSpace(in.Message),
		Source:   models.LeadExpert,
		Interest: strings.TrimSpace(in.Expertise),
		Details:  details,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, err
	}

	log.Info().Str("lead_id", lead.ID).Str("expertise", in.Expertise).Msg("🎓 Expert application captured")
	_ = s.notifier.NotifyAdmins(ctx, models.NotifyExperts,
		fmt.Sprintf("New expert application: %s", lead.Name), notify.TmplAdminExpert, lead)
	return lead, nil
}

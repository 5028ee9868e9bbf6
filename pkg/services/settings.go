package services

import (
	"context"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/calendar"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"

	"github.com/rs/zerolog/log"
)

// SiteSettings 前端公开可读的站点配置
type SiteSettings struct {
	GoogleMapsAPIKey string `json:"google_maps_api_key"`
	AnalyticsID      string `json:"analytics_id"`
}

// AdminSettings 管理后台看到的集成配置，OAuth 令牌不返回
type AdminSettings struct {
	CalendarConnected  bool       `json:"calendar_connected"`
	CalendarID         string     `json:"calendar_id"`
	TokenExpiry        *time.Time `json:"token_expiry"`
	NotifyGeneral      []string   `json:"notify_general"`
	NotifyApplications []string   `json:"notify_applications"`
	NotifySpaces       []string   `json:"notify_spaces"`
	NotifyLeads        []string   `json:"notify_leads"`
	NotifyExperts      []string   `json:"notify_experts"`
	AnalyticsID        string     `json:"analytics_id"`
	MapsAPIKey         string     `json:"maps_api_key"`
}

// SettingsUpdate 只修改非 nil 字段
type SettingsUpdate struct {
	CalendarID         *string   `json:"calendar_id"`
	NotifyGeneral      *[]string `json:"notify_general"`
	NotifyApplications *[]string `json:"notify_applications"`
	NotifySpaces       *[]string `json:"notify_spaces"`
	NotifyLeads        *[]string `json:"notify_leads"`
	NotifyExperts      *[]string `json:"notify_experts"`
	AnalyticsID        *string   `json:"analytics_id"`
	MapsAPIKey         *string   `json:"maps_api_key"`
}

// ExchangeInput exchange-google-token 请求体
type ExchangeInput struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// SettingsService admin_tokens 单例的读写
type SettingsService struct {
	db   database.DatabaseInterface
	auth CalendarAuth
}

func toAdminSettings(t *models.AdminToken) *AdminSettings {
	return &AdminSettings{
		CalendarConnected:  t.CalendarConnected(),
		CalendarID:         t.CalendarID,
		TokenExpiry:        t.TokenExpiry,
		NotifyGeneral:      nonNil(t.NotifyGeneral),
		NotifyApplications: nonNil(t.NotifyApplications),
		NotifySpaces:       nonNil(t.NotifySpaces),
		NotifyLeads:        nonNil(t.NotifyLeads),
		NotifyExperts:      nonNil(t.NotifyExperts),
		AnalyticsID:        t.AnalyticsID,
		MapsAPIKey:         t.MapsAPIKey,
	}
}

func nonNil(l models.StringList) []string {
	if l == nil {
		return []string{}
	}
	return l
}

// Public 站点公开配置
func (s *SettingsService) Public(ctx context.Context) (*SiteSettings, error) {
	t, err := calendar.LoadAdminToken(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return &SiteSettings{GoogleMapsAPIKey: t.MapsAPIKey, AnalyticsID: t.AnalyticsID}, nil
}

// Get 管理后台配置
func (s *SettingsService) Get(ctx context.Context) (*AdminSettings, error) {
	t, err := calendar.LoadAdminToken(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return toAdminSettings(t), nil
}

// Update 修改配置；通知地址列表会被规范化，含非法地址时报错
func (s *SettingsService) Update(ctx context.Context, in SettingsUpdate) (*AdminSettings, error) {
	t, err := calendar.LoadAdminToken(ctx, s.db)
	if err != nil {
		return nil, err
	}

	lists := []struct {
		name string
		in   *[]string
		dst  *models.StringList
	}{
		{"notify_general", in.NotifyGeneral, &t.NotifyGeneral},
		{"notify_applications", in.NotifyApplications, &t.NotifyApplications},
		{"notify_spaces", in.NotifySpaces, &t.NotifySpaces},
		{"notify_leads", in.NotifyLeads, &t.NotifyLeads},
		{"notify_experts", in.NotifyExperts, &t.NotifyExperts},
	}
	for _, l := range lists {
		if l.in == nil {
			continue
		}
		normalized := make([]string, 0, len(*l.in))
		for _, raw := range *l.in {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			addr, ok := notify.NormalizeAddress(raw)
			if !ok {
				return nil, invalidf("%s contains an invalid address %q", l.name, raw)
			}
			normalized = append(normalized, addr)
		}
		*l.dst = models.StringList(notify.NormalizeAddresses(normalized))
	}

	if in.CalendarID != nil {
		t.CalendarID = strings.TrimSpace(*in.CalendarID)
	}
	if in.AnalyticsID != nil {
		t.AnalyticsID = strings.TrimSpace(*in.AnalyticsID)
	}
	if in.MapsAPIKey != nil {
		t.MapsAPIKey = strings.TrimSpace(*in.MapsAPIKey)
	}

	if err := calendar.SaveAdminToken(ctx, s.db, t); err != nil {
		return nil, err
	}
	log.Info().Msg("⚙️  Integration settings updated")
	return toAdminSettings(t), nil
}

// GoogleAuthURL 跳转 Google 授权页的地址
func (s *SettingsService) GoogleAuthURL(state string) (string, error) {
	if s.auth == nil {
		return "", invalidf("google oauth is not configured")
	}
	return s.auth.AuthCodeURL(state), nil
}

// ExchangeGoogleCode 用授权码完成 Google Calendar 连接
func (s *SettingsService) ExchangeGoogleCode(ctx context.Context, in ExchangeInput) (*AdminSettings, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, invalidf("code is required")
	}
	if s.auth == nil {
		return nil, invalidf("google oauth is not configured")
	}
	t, err := s.auth.Exchange(ctx, in.Code, in.RedirectURI)
	if err != nil {
		return nil, err
	}
	return toAdminSettings(t), nil
}

// DisconnectCalendar 清除保存的 Google 令牌
func (s *SettingsService) DisconnectCalendar(ctx context.Context) (*AdminSettings, error) {
	t, err := calendar.LoadAdminToken(ctx, s.db)
	if err != nil {
		return nil, err
	}
	t.GoogleAccessToken = ""
	t.GoogleRefreshToken = ""
	t.TokenExpiry = nil
	if err := calendar.SaveAdminToken(ctx, s.db, t); err != nil {
		return nil, err
	}
	if f, ok := s.auth.(interface{ Forget() }); ok {
		f.Forget()
	}
	log.Info().Msg("🔌 Google Calendar disconnected")
	return toAdminSettings(t), nil
}

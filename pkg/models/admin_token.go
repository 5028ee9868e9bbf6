package models

import "time"

// AdminTokenID admin_tokens 表只有这一行
const AdminTokenID = "default"

// NotificationKind 管理员通知类别，决定使用哪一个覆盖列表
type NotificationKind string

const (
	NotifyGeneral      NotificationKind = "general"
	NotifyApplications NotificationKind = "applications"
	NotifySpaces       NotificationKind = "spaces"
	NotifyLeads        NotificationKind = "leads"
	NotifyExperts      NotificationKind = "experts"
)

// AdminToken 集成配置单例：Google OAuth 令牌、日历、通知覆盖列表、站点公开配置
type AdminToken struct {
	Base
	GoogleAccessToken  string     `json:"google_access_token" db:"google_access_token"`
	GoogleRefreshToken string     `json:"google_refresh_token" db:"google_refresh_token"`
	TokenExpiry        *time.Time `json:"token_expiry" db:"token_expiry"`
	CalendarID         string     `json:"calendar_id" db:"calendar_id"`
	NotifyGeneral      StringList `json:"notify_general" db:"notify_general"`
	NotifyApplications StringList `json:"notify_applications" db:"notify_applications"`
	NotifySpaces       StringList `json:"notify_spaces" db:"notify_spaces"`
	NotifyLeads        StringList `json:"notify_leads" db:"notify_leads"`
	NotifyExperts      StringList `json:"notify_experts" db:"notify_experts"`
	AnalyticsID        string     `json:"analytics_id" db:"analytics_id"`
	MapsAPIKey         string     `json:"maps_api_key" db:"maps_api_key"`
}

func (*AdminToken) TableName() string { return "admin_tokens" }

// Overrides returns the admin-configured list for kind (nil for general or unknown kinds).
func (t *AdminToken) Overrides(kind NotificationKind) []string {
	switch kind {
	case NotifyApplications:
		return t.NotifyApplications
	case NotifySpaces:
		return t.NotifySpaces
	case NotifyLeads:
		return t.NotifyLeads
	case NotifyExperts:
		return t.NotifyExperts
	}
	return nil
}

// CalendarConnected 是否已完成 Google 授权
func (t *AdminToken) CalendarConnected() bool {
	return t.GoogleRefreshToken != "" || t.GoogleAccessToken != ""
}

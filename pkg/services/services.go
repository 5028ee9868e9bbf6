package services

import (
	"context"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/calendar"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"
	"coworking-alliance-backend/pkg/ratelimit"
	"coworking-alliance-backend/pkg/spam"
	"coworking-alliance-backend/pkg/utils"
)

// CalendarAPI Google Calendar 操作
type CalendarAPI interface {
	CreateEvent(ctx context.Context, calendarID string, in calendar.EventInput) (*calendar.RemoteEvent, error)
	ListEvents(ctx context.Context, calendarID string, timeMin time.Time) ([]calendar.RemoteEvent, error)
	AddAttendee(ctx context.Context, calendarID, eventID, email, name string) (bool, error)
}

// CalendarAuth Google OAuth 授权
type CalendarAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, redirectURI string) (*models.AdminToken, error)
}

// Options 构造服务层所需的依赖
type Options struct {
	DB           database.DatabaseInterface
	Notifier     *notify.Notifier
	Limiter      *ratelimit.Limiter
	Spam         *spam.Checker
	Calendar     CalendarAPI
	CalendarAuth CalendarAuth
	JWT          *utils.JWTService
	// BaseURL 前端站点地址，用于邀请链接等
	BaseURL string
	// CalendarID admin_tokens 未配置时使用的日历
	CalendarID string
	Now        func() time.Time
}

// Services 所有业务流程
type Services struct {
	Submissions  *SubmissionService
	Applications *ApplicationService
	Spaces       *SpaceService
	Leads        *LeadService
	Events       *EventService
	Admins       *AdminService
	Content      *ContentService
	Settings     *SettingsService
}

// New 组装服务层
func New(opts Options) *Services {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	submissions := &SubmissionService{limiter: opts.Limiter, spam: opts.Spam}
	content := newContentService(opts.DB, opts.Now)

	return &Services{
		Submissions: submissions,
		Applications: &ApplicationService{
			db: opts.DB, notifier: opts.Notifier, guard: submissions,
			apps: content.Applications, profiles: content.Profiles, now: opts.Now,
		},
		Spaces: &SpaceService{
			db: opts.DB, notifier: opts.Notifier, guard: submissions,
			spaces: content.Spaces, profiles: content.Profiles, now: opts.Now,
		},
		Leads: &LeadService{notifier: opts.Notifier, guard: submissions, leads: content.Leads},
		Events: &EventService{
			db: opts.DB, notifier: opts.Notifier, guard: submissions, calendar: opts.Calendar,
			events: content.Events, rsvps: content.Rsvps,
			calendarID: opts.CalendarID, baseURL: opts.BaseURL, now: opts.Now,
		},
		Admins: &AdminService{
			db: opts.DB, notifier: opts.Notifier, jwt: opts.JWT, limiter: opts.Limiter,
			profiles: content.Profiles, baseURL: opts.BaseURL, now: opts.Now,
		},
		Content:  content,
		Settings: &SettingsService{db: opts.DB, auth: opts.CalendarAuth},
	}
}

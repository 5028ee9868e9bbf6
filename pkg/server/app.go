package server

import (
	"fmt"
	"time"

	"coworking-alliance-backend/pkg/calendar"
	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/notify"
	"coworking-alliance-backend/pkg/ratelimit"
	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/spam"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/log"
)

// App 一个进程内共享的依赖
type App struct {
	Config   *config.Config
	DB       database.DatabaseInterface
	JWT      *utils.JWTService
	Services *services.Services
	Now      func() time.Time
}

// NewApp 按配置打开数据库并组装服务层，连接由 GetOptimizedDatabase 管理
func NewApp(cfg *config.Config) (*App, error) {
	return NewAppWithResolver(cfg, database.GetOptimizedDatabase)
}

// NewAppWithResolver App 不持有具体连接，每次数据库操作都经 resolve 取一次，
// 空闲清理或健康检查替换掉的连接不会被继续使用
func NewAppWithResolver(cfg *config.Config, resolve func(database.DatabaseConfig) (database.DatabaseInterface, error)) (*App, error) {
	dbConfig := database.DatabaseConfig{
		Driver:      cfg.DatabaseDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
		Debug:       cfg.Debug,
	}
	// 启动时先连一次，配置错误尽早暴露
	if _, err := resolve(dbConfig); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewAppWithDB(cfg, database.NewOnDemand(dbConfig, resolve), time.Now), nil
}

// NewAppWithDB 使用已打开的数据库组装，测试用内存库和固定时钟
func NewAppWithDB(cfg *config.Config, db database.DatabaseInterface, now func() time.Time) *App {
	jwt := utils.NewJWTServiceWithClock(cfg.JWTSecret, now)

	opts := services.Options{
		DB:         db,
		Notifier:   notify.NewNotifier(notify.NewResolver(db, cfg.FallbackAdminEmail), newMailer(cfg)),
		Limiter:    ratelimit.NewLimiter(db, policyFrom(cfg.RateLimit), now),
		Spam:       newSpamChecker(cfg, db),
		JWT:        jwt,
		BaseURL:    cfg.BaseURL,
		CalendarID: cfg.GoogleCalendarID,
		Now:        now,
	}

	// 未配置 Google 时保持接口为 nil，服务层据此返回未连接
	if cfg.GoogleConfigured() {
		oauth := calendar.NewOAuth(db, calendar.OAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
			TokenURL:     cfg.GoogleTokenURL,
		})
		opts.CalendarAuth = oauth
		opts.Calendar = calendar.NewClient(oauth, cfg.GoogleAPIBaseURL)
	} else {
		log.Warn().Msg("⚠️  Google OAuth not configured, calendar features disabled")
	}

	return &App{
		Config:   cfg,
		DB:       db,
		JWT:      jwt,
		Services: services.New(opts),
		Now:      now,
	}
}

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.ResendAPIKey == "" {
		log.Warn().Msg("📭 RESEND_API_KEY not set, emails will only be logged")
		return notify.LogMailer{}
	}
	return notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailAPIURL)
}

func newSpamChecker(cfg *config.Config, db database.DatabaseInterface) *spam.Checker {
	if cfg.RecaptchaSecret == "" {
		return spam.NewChecker(db, nil, cfg.RecaptchaMinScore, nil)
	}
	return spam.NewChecker(db, spam.NewRecaptcha(cfg.RecaptchaSecret, cfg.RecaptchaVerifyURL), cfg.RecaptchaMinScore, nil)
}

func policyFrom(rl config.RateLimitConfig) ratelimit.Policy {
	return ratelimit.Policy{
		MaxAttempts:   rl.MaxAttempts,
		EscalateAfter: rl.EscalateAfter,
		Window:        rl.Window,
		Lockout:       rl.Lockout,
		LongLockout:   rl.LongLockout,
	}
}

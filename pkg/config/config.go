package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// 支持的数据库驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string
	BaseURL     string // 前端站点地址，用于邮件中的链接

	// 数据库配置
	DatabaseDriver string
	PostgresDSN    string
	SQLitePath     string
	SupabaseURL    string
	SupabaseKey    string

	// JWT配置
	JWTSecret string

	// Google OAuth / Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleCalendarID   string
	GoogleAPIBaseURL   string
	GoogleTokenURL     string

	// 邮件配置
	ResendAPIKey       string
	EmailFrom          string
	EmailAPIURL        string
	FallbackAdminEmail string

	// 反垃圾配置
	RecaptchaSecret    string
	RecaptchaMinScore  float64
	RecaptchaVerifyURL string

	// 限流配置
	RateLimit RateLimitConfig

	// CORS配置
	AllowedOrigins []string
	// TrustedProxyHops 前面可信代理的层数，决定从 X-Forwarded-For 取哪一项作为客户端 IP
	TrustedProxyHops int

	// 调试配置
	Debug bool
}

// RateLimitConfig 固定窗口限流参数
type RateLimitConfig struct {
	MaxAttempts   int
	EscalateAfter int
	Window        time.Duration
	Lockout       time.Duration
	LongLockout   time.Duration
}

// LoadConfig 加载配置（支持本地 .env 文件和纯环境变量）
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	switch env {
	case "production":
		readEnvFile(v, ".env.production")
	default:
		readEnvFile(v, ".env.local")
	}
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("BASE_URL", "http://localhost:5173")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("SQLITE_PATH", "./data/coworking.db")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("GOOGLE_API_BASE_URL", "https://www.googleapis.com/calendar/v3")
	v.SetDefault("EMAIL_FROM", "Coworking Alliance <noreply@coworkingalliance.org>")
	v.SetDefault("EMAIL_API_URL", "https://api.resend.com/emails")
	v.SetDefault("FALLBACK_ADMIN_EMAIL", "admin@coworkingalliance.org")
	v.SetDefault("RECAPTCHA_MIN_SCORE", 0.5)
	v.SetDefault("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("RATE_LIMIT_MAX_ATTEMPTS", 5)
	v.SetDefault("RATE_LIMIT_ESCALATE_AFTER", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_LOCKOUT", "30m")
	v.SetDefault("RATE_LIMIT_LONG_LOCKOUT", "1h")
	v.SetDefault("ALLOWED_ORIGINS", "*")

	config := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Port:        v.GetString("PORT"),
		BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("BASE_URL")), "/"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Debug:       v.GetBool("DEBUG"),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(v.GetString("POSTGRES_DSN"))
	config.SQLitePath = strings.TrimSpace(v.GetString("SQLITE_PATH"))
	config.SupabaseURL = strings.TrimSpace(v.GetString("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(v.GetString("SUPABASE_SERVICE_KEY"))
	config.DatabaseDriver = strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER")))
	if config.DatabaseDriver == "" {
		config.DatabaseDriver = detectDriver(config)
	}

	// Google
	config.GoogleClientID = strings.TrimSpace(v.GetString("GOOGLE_CLIENT_ID"))
	config.GoogleClientSecret = strings.TrimSpace(v.GetString("GOOGLE_CLIENT_SECRET"))
	config.GoogleRedirectURI = strings.TrimSpace(v.GetString("GOOGLE_REDIRECT_URI"))
	config.GoogleCalendarID = strings.TrimSpace(v.GetString("GOOGLE_CALENDAR_ID"))
	config.GoogleAPIBaseURL = strings.TrimRight(strings.TrimSpace(v.GetString("GOOGLE_API_BASE_URL")), "/")
	config.GoogleTokenURL = strings.TrimSpace(v.GetString("GOOGLE_TOKEN_URL"))

	// 邮件
	config.ResendAPIKey = strings.TrimSpace(v.GetString("RESEND_API_KEY"))
	config.EmailFrom = v.GetString("EMAIL_FROM")
	config.EmailAPIURL = strings.TrimSpace(v.GetString("EMAIL_API_URL"))
	config.FallbackAdminEmail = strings.TrimSpace(v.GetString("FALLBACK_ADMIN_EMAIL"))

	// reCAPTCHA
	config.RecaptchaSecret = strings.TrimSpace(v.GetString("RECAPTCHA_SECRET"))
	config.RecaptchaMinScore = v.GetFloat64("RECAPTCHA_MIN_SCORE")
	config.RecaptchaVerifyURL = strings.TrimSpace(v.GetString("RECAPTCHA_VERIFY_URL"))

	config.RateLimit = RateLimitConfig{
		MaxAttempts:   v.GetInt("RATE_LIMIT_MAX_ATTEMPTS"),
		EscalateAfter: v.GetInt("RATE_LIMIT_ESCALATE_AFTER"),
		Window:        v.GetDuration("RATE_LIMIT_WINDOW"),
		Lockout:       v.GetDuration("RATE_LIMIT_LOCKOUT"),
		LongLockout:   v.GetDuration("RATE_LIMIT_LONG_LOCKOUT"),
	}

	// Vercel 的边缘网络是唯一一层代理，会覆盖 X-Forwarded-For
	config.TrustedProxyHops = v.GetInt("TRUSTED_PROXY_HOPS")
	if !v.IsSet("TRUSTED_PROXY_HOPS") && (os.Getenv("VERCEL_ENV") != "" || os.Getenv("VERCEL_URL") != "") {
		config.TrustedProxyHops = 1
	}

	// CORS配置（viper 的 StringSlice 按空白切分，这里按逗号自己切）
	config.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	if config.Environment == "production" {
		if config.DatabaseDriver == DriverMemory || config.DatabaseDriver == DriverSQLite {
			log.Warn().Str("driver", config.DatabaseDriver).
				Msg("⚠️  Production environment using a local database. Configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless platforms it initializes once per cold start and
// reuses it across warm invocations.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("DATABASE_DRIVER=supabase requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("DATABASE_DRIVER=sqlite requires SQLITE_PATH")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.TrustedProxyHops < 0 {
		return fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative")
	}

	rl := c.RateLimit
	if rl.MaxAttempts <= 0 || rl.EscalateAfter < rl.MaxAttempts || rl.Window <= 0 {
		return fmt.Errorf("invalid rate limit settings: max=%d escalate=%d window=%s", rl.MaxAttempts, rl.EscalateAfter, rl.Window)
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GoogleConfigured 是否配置了 Google OAuth 客户端
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// detectDriver 未显式指定驱动时按已有配置推断：PostgreSQL > Supabase > SQLite
func detectDriver(c *Config) string {
	if c.PostgresDSN != "" {
		return DriverPostgres
	}
	if c.SupabaseURL != "" && c.SupabaseKey != "" {
		return DriverSupabase
	}
	return DriverSQLite
}

// readEnvFile 读取 dotenv 文件，文件不存在时静默跳过
func readEnvFile(v *viper.Viper, filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return
	}
	v.SetConfigFile(filename)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("failed to read env file")
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

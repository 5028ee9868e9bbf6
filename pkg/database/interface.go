package database

import (
	"context"
	"errors"
	"fmt"

	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 违反唯一约束
	ErrConflict = errors.New("record conflicts with an existing one")
)

// DatabaseInterface 定义数据库访问接口
// 所有表共用一套按记录类型分派的 CRUD，表名来自 models.Record.TableName
type DatabaseInterface interface {
	// Insert 写入新记录；ID 为空时生成 UUID，created_at/updated_at 自动填充
	Insert(ctx context.Context, rec models.Record) error
	// Update 按 ID 覆盖除 id/created_at 之外的所有列
	Update(ctx context.Context, rec models.Record) error
	// Delete 按 ID 删除
	Delete(ctx context.Context, rec models.Record) error
	// Get 按 rec.GetID() 读取并填充 rec
	Get(ctx context.Context, rec models.Record) error
	// Find 查询到 dest（*[]T），表名取 f.Table 或 T 的表名
	Find(ctx context.Context, dest interface{}, f Filter) error

	// UpsertRateLimit 对 (identifier, actionType) 的限流行做加锁的读-改-写
	UpsertRateLimit(ctx context.Context, identifier, actionType string, apply func(*models.RateLimit) error) (*models.RateLimit, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// Filter 简单查询条件：等值、>=、排序与分页
type Filter struct {
	Table   string
	Eq      map[string]interface{}
	Gte     map[string]interface{}
	OrderBy string
	Desc    bool
	// ThenBy OrderBy 相同时的次排序列，升序
	ThenBy string
	Limit  int
	Offset int
}

type orderTerm struct {
	column string
	desc   bool
}

// orderTerms 校验排序列，按优先级返回
func (f Filter) orderTerms() ([]orderTerm, error) {
	var terms []orderTerm
	if f.OrderBy != "" {
		terms = append(terms, orderTerm{column: f.OrderBy, desc: f.Desc})
	}
	if f.ThenBy != "" {
		terms = append(terms, orderTerm{column: f.ThenBy})
	}
	for _, t := range terms {
		if !columnPattern.MatchString(t.column) {
			return nil, fmt.Errorf("invalid order column %q", t.column)
		}
	}
	return terms, nil
}

// Where 以等值条件构造 Filter
func Where(eq map[string]interface{}) Filter {
	return Filter{Eq: eq}
}

// First 返回满足条件的第一条记录，没有时返回 ErrNotFound
func First[T any, PT interface {
	*T
	models.Record
}](ctx context.Context, db DatabaseInterface, f Filter) (*T, error) {
	f.Limit = 1
	var rows []T
	if err := db.Find(ctx, &rows, f); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	SupabaseURL string
	SupabaseKey string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	// Vercel 优先使用 Supabase（避免 IPv6）
	if IsVercelEnvironment() && config.Driver == "postgres" && config.SupabaseURL != "" && config.SupabaseKey != "" {
		log.Info().Msg("🧭 Detected Vercel production environment, switching to Supabase REST API")
		config.Driver = "supabase"
	}

	switch config.Driver {
	case "postgres":
		log.Info().Msg("🗄️  Using PostgreSQL database")
		return NewPostgresDatabase(config.PostgresDSN)
	case "supabase":
		log.Info().Msg("🧰  Using Supabase REST API")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey), nil
	case "sqlite":
		if IsVercelEnvironment() {
			return nil, fmt.Errorf("sqlite is not supported in serverless environments; configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
		}
		log.Info().Str("path", config.SQLitePath).Msg("📁 Using local SQLite database")
		return NewSQLiteDatabase(config.SQLitePath)
	case "memory":
		log.Warn().Msg("🧪 Using in-memory database, data is lost on restart")
		return NewMemoryDatabase(), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
}

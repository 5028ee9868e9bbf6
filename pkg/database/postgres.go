package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (*SQLDatabase, error) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	return newSQLDatabase(db, dialectPostgres), nil
}

// OpenPostgres 尝试多种连接策略来解决 Vercel Lambda 的 IPv6 问题
func OpenPostgres(dsn string) (*sqlx.DB, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres DSN")
	}
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		log.Debug().Int("strategy", i+1).Msg("🔄 Trying postgres connection strategy")

		db, err := sqlx.Open("postgres", strategy)
		if err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("❌ Strategy failed to open")
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)                  // 限制最大连接数
		db.SetMaxIdleConns(2)                  // 限制空闲连接数
		db.SetConnMaxLifetime(5 * time.Minute) // 连接最大生命周期

		// 测试连接
		if err = db.Ping(); err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("❌ Strategy failed to ping")
			db.Close()
			lastErr = err
			continue
		}

		log.Info().Int("strategy", i+1).Msg("✅ PostgreSQL connection established")
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	// key=value 形式的 DSN 用空格分隔参数
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

package database

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// vercelConn 一个按配置缓存的连接
type vercelConn struct {
	db       DatabaseInterface
	driver   string
	lastUsed time.Time
}

// VercelOptimizer Serverless 环境下按配置复用连接，热调用之间保持，空闲后清理
type VercelOptimizer struct {
	mu          sync.Mutex
	conns       map[string]*vercelConn
	idleTimeout time.Duration
	open        func(DatabaseConfig) (DatabaseInterface, error)
	now         func() time.Time

	// 距上次使用不足 recheckAfter 的连接直接复用，不再 ping
	recheckAfter time.Duration
}

var (
	vercelOptimizer *VercelOptimizer
	optimizerOnce   sync.Once
)

// NewVercelOptimizer open 负责真正建立连接，通常是 NewDatabase
func NewVercelOptimizer(open func(DatabaseConfig) (DatabaseInterface, error)) *VercelOptimizer {
	return &VercelOptimizer{
		conns:        make(map[string]*vercelConn),
		idleTimeout:  10 * time.Minute,
		recheckAfter: 30 * time.Second,
		open:         open,
		now:          time.Now,
	}
}

// GetVercelOptimizer 获取Vercel优化器单例
func GetVercelOptimizer() *VercelOptimizer {
	optimizerOnce.Do(func() {
		vercelOptimizer = NewVercelOptimizer(NewDatabase)
		if IsVercelEnvironment() {
			go vercelOptimizer.backgroundCleanup()
		}
	})
	return vercelOptimizer
}

// GetOptimizedConnection 复用健康的连接，否则新建
func (vo *VercelOptimizer) GetOptimizedConnection(config DatabaseConfig) (DatabaseInterface, error) {
	key := configKey(config)

	vo.mu.Lock()
	defer vo.mu.Unlock()

	if c, ok := vo.conns[key]; ok {
		now := vo.now()
		var err error
		if now.Sub(c.lastUsed) >= vo.recheckAfter {
			err = c.db.HealthCheck()
		}
		if err == nil {
			c.lastUsed = now
			return c.db, nil
		}
		log.Warn().Err(err).Str("key", key[:8]).Msg("❌ Connection unhealthy, removing")
		c.db.Close()
		delete(vo.conns, key)
	}

	log.Debug().Str("key", key[:8]).Str("driver", config.Driver).Msg("🔄 Creating new optimized database connection")
	db, err := vo.open(config)
	if err != nil {
		return nil, err
	}
	vo.conns[key] = &vercelConn{db: db, driver: config.Driver, lastUsed: vo.now()}
	return db, nil
}

// configKey 配置的摘要，日志和统计中不出现 DSN 或密钥原文
func configKey(config DatabaseConfig) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%t",
		config.Driver, config.PostgresDSN, config.SQLitePath, config.SupabaseURL, config.SupabaseKey, config.Debug)))
	return hex.EncodeToString(sum[:])
}

func (vo *VercelOptimizer) backgroundCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		vo.CleanupExpiredConnections(vo.now())
	}
}

// CleanupExpiredConnections 关闭空闲超时的连接，返回关闭数量；内存库不清理
func (vo *VercelOptimizer) CleanupExpiredConnections(now time.Time) int {
	vo.mu.Lock()
	defer vo.mu.Unlock()

	closed := 0
	for key, c := range vo.conns {
		if c.driver == "memory" || now.Sub(c.lastUsed) <= vo.idleTimeout {
			continue
		}
		log.Debug().Str("key", key[:8]).Msg("🧹 Cleaning up expired connection")
		c.db.Close()
		delete(vo.conns, key)
		closed++
	}

	if closed > 0 {
		log.Info().Int("count", closed).Msg("🧹 Cleaned up expired connections")
	}
	return closed
}

// GetStats 获取优化器统计信息
func (vo *VercelOptimizer) GetStats() map[string]interface{} {
	vo.mu.Lock()
	defer vo.mu.Unlock()

	now := vo.now()
	conns := make([]map[string]interface{}, 0, len(vo.conns))
	for key, c := range vo.conns {
		conns = append(conns, map[string]interface{}{
			"key":       key[:8] + "...",
			"driver":    c.driver,
			"last_used": c.lastUsed.Format(time.RFC3339),
			"idle_for":  now.Sub(c.lastUsed).String(),
		})
	}

	return map[string]interface{}{
		"total_connections": len(vo.conns),
		"connections":       conns,
	}
}

// GetOptimizedDatabase Vercel 上走优化器，其他环境走进程内连接池
func GetOptimizedDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if IsVercelEnvironment() {
		return GetVercelOptimizer().GetOptimizedConnection(config)
	}
	return GetDatabase(config)
}

// IsVercelEnvironment 检查是否在Vercel环境中
func IsVercelEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" || os.Getenv("VERCEL_URL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

package database

import (
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// connPool 非 Vercel 环境下进程内共享的单个数据库实例
//
// 配置变化、空闲超过 maxIdle 或健康检查失败时重建；内存库重建会丢数据，只在配置变化时重建
type connPool struct {
	mu       sync.Mutex
	instance DatabaseInterface
	config   DatabaseConfig
	lastUsed time.Time
	maxIdle  time.Duration
	recheck  time.Duration // 距上次使用不足 recheck 时跳过健康检查
	open     func(DatabaseConfig) (DatabaseInterface, error)
	now      func() time.Time
}

var defaultPool = newConnPool(NewDatabase)

func newConnPool(open func(DatabaseConfig) (DatabaseInterface, error)) *connPool {
	return &connPool{maxIdle: 30 * time.Minute, recheck: 30 * time.Second, open: open, now: time.Now}
}

// GetDatabase 获取进程内共享的数据库实例
func GetDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	return defaultPool.get(config)
}

// GetConnectionStats 连接池状态，SQL 后端附带 database/sql 的连接统计
func GetConnectionStats() map[string]interface{} {
	return defaultPool.stats()
}

func (p *connPool) get(config DatabaseConfig) (DatabaseInterface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if reason := p.staleReason(config); reason != "" {
		log.Info().Str("driver", config.Driver).Str("reason", reason).Msg("🔄 Opening database connection")
		if p.instance != nil {
			p.instance.Close()
			p.instance = nil
		}
		instance, err := p.open(config)
		if err != nil {
			return nil, err
		}
		p.instance = instance
		p.config = config
	}

	p.lastUsed = p.now()
	return p.instance, nil
}

// staleReason 需要重建时返回原因，否则返回空串
func (p *connPool) staleReason(config DatabaseConfig) string {
	switch {
	case p.instance == nil:
		return "first use"
	case p.config != config:
		return "config changed"
	case config.Driver == "memory":
		return ""
	case p.now().Sub(p.lastUsed) > p.maxIdle:
		return "idle"
	case p.now().Sub(p.lastUsed) < p.recheck:
		return ""
	}
	if err := p.instance.HealthCheck(); err != nil {
		log.Warn().Err(err).Msg("❌ Database health check failed")
		return "unhealthy"
	}
	return ""
}

func (p *connPool) stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return map[string]interface{}{"status": "no_connection"}
	}

	out := map[string]interface{}{
		"status":    "connected",
		"driver":    p.config.Driver,
		"last_used": p.lastUsed.Format(time.RFC3339),
		"idle_for":  p.now().Sub(p.lastUsed).String(),
	}
	if s, ok := p.instance.(interface{ DB() *sqlx.DB }); ok {
		st := s.DB().Stats()
		out["open_connections"] = st.OpenConnections
		out["in_use"] = st.InUse
		out["idle"] = st.Idle
		out["wait_count"] = st.WaitCount
	}
	return out
}

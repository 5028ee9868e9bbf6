package handlers

import (
	"net/http"
	"time"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/utils"
)

const serviceVersion = "1.0.0"

// HealthHandler 健康检查与开发环境调试端点
type HealthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	now    func() time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config, db database.DatabaseInterface, now func() time.Time) *HealthHandler {
	if now == nil {
		now = time.Now
	}
	return &HealthHandler{config: cfg, db: db, now: now}
}

// HealthCheck GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "coworking-alliance-backend",
		"version":     serviceVersion,
		"environment": h.config.Environment,
		"database":    h.config.DatabaseDriver,
		"db_status":   dbStatus,
		"timestamp":   h.now().Unix(),
		"status":      "healthy",
	})
}

// DBPool GET /debug/db-pool
func (h *HealthHandler) DBPool(w http.ResponseWriter, r *http.Request) {
	var stats map[string]interface{}
	if database.IsVercelEnvironment() {
		// Vercel环境显示优化器状态
		stats = database.GetVercelOptimizer().GetStats()
		stats["optimizer_type"] = "vercel"
	} else {
		stats = database.GetConnectionStats()
		stats["optimizer_type"] = "standard"
	}
	utils.WriteSuccessResponse(w, stats)
}

// EnvCheck GET /debug/env-check 只报告是否配置，不回显值
func (h *HealthHandler) EnvCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"database_driver":      h.config.DatabaseDriver,
		"jwt_secret":           h.config.JWTSecret != "",
		"google_client_id":     h.config.GoogleClientID != "",
		"google_client_secret": h.config.GoogleClientSecret != "",
		"google_redirect_uri":  h.config.GoogleRedirectURI,
		"resend_api_key":       h.config.ResendAPIKey != "",
		"recaptcha_secret":     h.config.RecaptchaSecret != "",
		"fallback_admin_email": h.config.FallbackAdminEmail,
	})
}

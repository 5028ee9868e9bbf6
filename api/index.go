package handler

import (
	"net/http"
	"sync"

	"coworking-alliance-backend/pkg/config"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/logger"
	"coworking-alliance-backend/pkg/server"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/log"
)

var (
	routerMu sync.Mutex
	router   http.Handler

	loadConfig = config.GetCached
	resolveDB  = database.GetOptimizedDatabase
)

// Handler 是Vercel函数的入口点
// 路由器在首次成功初始化后复用；初始化失败不缓存，下一次调用重试
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := getRouter()
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to initialize handler")
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable", "")
		return
	}
	h.ServeHTTP(w, r)
}

func getRouter() (http.Handler, error) {
	routerMu.Lock()
	defer routerMu.Unlock()

	if router != nil {
		return router, nil
	}

	cfg := loadConfig()
	l := logger.Setup(cfg.IsProduction(), cfg.Debug)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// App 每次数据库操作都经优化器取连接，热调用之间的空闲清理不会留下失效句柄
	app, err := server.NewAppWithResolver(cfg, resolveDB)
	if err != nil {
		return nil, err
	}
	router = server.NewRouter(app, l)
	return router, nil
}

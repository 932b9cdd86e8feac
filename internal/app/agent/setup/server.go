package setup

import (
	"fmt"
	"net/http"
	"time"

	"clownetagent/internal/app/agent/middleware"
	"clownetagent/internal/app/agent/router"
	"clownetagent/internal/config"
)

// SetupServer 初始化本地健康检查服务模块
func SetupServer(cfg *config.Config, status router.StatusProvider) *ServerModule {
	mode := cfg.Server.Mode
	if cfg.App != nil && cfg.App.Debug {
		mode = "debug"
	}

	r := router.NewRouter(&router.RouterConfig{
		Mode:             mode,
		MiddlewareConfig: createMiddlewareConfig(cfg),
	}, status)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r.GetEngine(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	return &ServerModule{
		Router:     r,
		HTTPServer: httpServer,
	}
}

// createMiddlewareConfig 将全局配置转换为中间件配置
func createMiddlewareConfig(cfg *config.Config) *router.MiddlewareConfig {
	return &router.MiddlewareConfig{
		Auth: &middleware.AuthConfig{
			APIKey:       cfg.Server.APIKey,
			APIKeyHeader: "X-API-Key",
		},
		Logging: &middleware.LoggingConfig{
			SkipPaths:            []string{"/health", "/ping"},
			SlowRequestThreshold: 2 * time.Second,
		},
	}
}

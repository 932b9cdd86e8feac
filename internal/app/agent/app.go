/**
 * Agent应用程序核心逻辑
 * @author: sun977
 * @date: 2025.10.21
 * @description: Agent应用的核心逻辑，负责初始化各组件、启动中继连接与本地服务
 */

package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"clownetagent/internal/app/agent/router"
	"clownetagent/internal/app/agent/setup"
	"clownetagent/internal/config"
	"clownetagent/internal/core/model"
	"clownetagent/internal/pkg/logger"
)

// Options 应用启动参数
type Options struct {
	ConfigPath string                 // 配置文件或目录
	Overrides  map[string]interface{} // 命令行覆盖项，key 为 viper 路径
}

// App Agent应用程序结构体
type App struct {
	opts      Options
	config    *config.Config
	logger    *logger.LoggerManager
	identity  model.AgentIdentity
	startedAt time.Time

	relay   *setup.RelayModule
	core    *setup.CoreModule
	server  *setup.ServerModule
	watcher *config.ConfigWatcher

	cancel   context.CancelFunc
	runDone  chan struct{}
	stopOnce sync.Once
}

// NewApp 创建新的Agent应用程序实例
func NewApp(opts Options) (*App, error) {
	loader := newLoader(opts)
	cfg, err := loader.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志管理器
	loggerManager, err := logger.InitLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	identity := model.NewAgentIdentity(cfg.Agent.ID, cfg.Agent.Hostname, cfg.Agent.Role)
	logger.LogSystemEvent("App", "Init", "ClawNet agent initializing", logger.InfoLevel, map[string]interface{}{
		"agent":    identity.ID(),
		"role":     identity.Role(),
		"hostname": identity.Hostname(),
		"config":   loader.GetConfigPath(),
	})

	app := &App{
		opts:      opts,
		config:    cfg,
		logger:    loggerManager,
		identity:  identity,
		startedAt: time.Now(),
	}

	// 初始化各模块
	app.relay, err = setup.SetupRelay(cfg, identity)
	if err != nil {
		return nil, err
	}
	app.core = setup.SetupCore(cfg, identity, app.relay)
	if cfg.Server != nil && cfg.Server.Enabled {
		app.server = setup.SetupServer(cfg, &statusProvider{app: app})
	}

	// 配置热更新，仅在使用了配置文件时启用
	if path := loader.GetConfigPath(); path != "" {
		app.watcher, err = config.NewConfigWatcher(cfg, path, func() *config.ConfigLoader { return newLoader(opts) })
		if err != nil {
			logger.LogSystemEvent("App", "Watcher", fmt.Sprintf("Config watcher disabled: %v", err), logger.WarnLevel, nil)
		} else {
			app.watcher.AddCallback(app.applyConfig)
			app.watcher.OnError(func(err error) {
				logger.LogSystemEvent("App", "Watcher", err.Error(), logger.WarnLevel, nil)
			})
		}
	}

	return app, nil
}

// newLoader 创建带命令行覆盖项的配置加载器
func newLoader(opts Options) *config.ConfigLoader {
	loader := config.NewConfigLoader(opts.ConfigPath, config.EnvPrefix)
	for key, value := range opts.Overrides {
		loader.WithOverride(key, value)
	}
	return loader
}

// GetConfig 获取配置实例
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetRouter 获取路由器实例，本地服务未启用时返回 nil
func (a *App) GetRouter() *router.Router {
	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Identity Agent身份
func (a *App) Identity() model.AgentIdentity {
	return a.identity
}

// Start 启动Agent应用程序
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.runDone = make(chan struct{})

	// 中继连接循环
	go func() {
		defer close(a.runDone)
		if err := a.relay.Connection.Run(ctx); err != nil {
			logger.LogSystemEvent("App", "Relay", fmt.Sprintf("Relay loop exited: %v", err), logger.ErrorLevel, nil)
		}
	}()

	// 周期上报
	a.core.Reporting.Start(ctx)

	// 本地健康检查服务
	if a.server != nil {
		go func() {
			if err := a.server.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.LogSystemEvent("App", "HTTPServer", fmt.Sprintf("Health server failed: %v", err), logger.ErrorLevel, nil)
			}
		}()
		logger.Infof("Health server listening on %s", a.server.HTTPServer.Addr)
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			logger.LogSystemEvent("App", "Watcher", fmt.Sprintf("Failed to start config watcher: %v", err), logger.WarnLevel, nil)
		}
	}

	logger.LogSystemEvent("App", "Start", "ClawNet agent started", logger.InfoLevel, map[string]interface{}{
		"agent": a.identity.ID(),
		"relay": a.config.Relay.URL,
	})
	return nil
}

// Stop 停止Agent应用程序，等待进行中的指令直到 ctx 到期
func (a *App) Stop(ctx context.Context) error {
	var stopErr error
	a.stopOnce.Do(func() {
		logger.Info("Stopping ClawNet agent...")

		if a.watcher != nil {
			_ = a.watcher.Stop()
		}

		// 取消中继连接与上报，进行中的子进程随之被终止
		a.core.Reporting.Stop()
		if a.cancel != nil {
			a.cancel()
		}

		if a.server != nil {
			if err := a.server.HTTPServer.Shutdown(ctx); err != nil {
				stopErr = fmt.Errorf("failed to stop HTTP server: %w", err)
			}
		}

		if err := a.core.CommandRouter.Wait(ctx); err != nil {
			logger.LogSystemEvent("App", "Stop", "In-flight instructions did not finish before deadline", logger.WarnLevel, nil)
		}

		if a.runDone != nil {
			select {
			case <-a.runDone:
			case <-ctx.Done():
			}
		}

		if err := a.core.Auditor.Close(); err != nil {
			logger.LogSystemEvent("App", "Stop", fmt.Sprintf("Failed to close traffic auditor: %v", err), logger.WarnLevel, nil)
		}

		logger.Info("ClawNet agent stopped")
	})
	return stopErr
}

// applyConfig 应用可热更新的配置项
func (a *App) applyConfig(oldConfig, newConfig *config.Config) error {
	if newConfig.Log != nil {
		if err := a.logger.UpdateConfig(newConfig.Log); err != nil {
			return fmt.Errorf("failed to update log config: %w", err)
		}
	}
	if newConfig.Report != nil && (oldConfig.Report == nil || newConfig.Report.Interval != oldConfig.Report.Interval) {
		a.core.Reporting.SetInterval(newConfig.Report.Interval)
		logger.Infof("Report interval updated to %s", newConfig.Report.Interval)
	}
	a.config = newConfig
	return nil
}

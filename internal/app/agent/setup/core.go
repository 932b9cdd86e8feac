package setup

import (
	"context"
	"fmt"

	"clownetagent/internal/config"
	"clownetagent/internal/core/model"
	"clownetagent/internal/executor/brain"
	"clownetagent/internal/executor/system"
	"clownetagent/internal/pkg/dedupe"
	"clownetagent/internal/pkg/logger"
	pkgMonitor "clownetagent/internal/pkg/monitor"
	"clownetagent/internal/service/audit"
	"clownetagent/internal/service/command"
	"clownetagent/internal/service/monitor"
	"clownetagent/internal/service/task"
)

// SetupCore 初始化指令执行、上报与审计模块，并挂载到中继分发器
func SetupCore(cfg *config.Config, identity model.AgentIdentity, relay *RelayModule) *CoreModule {
	conn := relay.Connection

	// 1. 进程执行与 Brain CLI
	runner := system.NewProcessRunner()
	brainClient := brain.NewClient(brain.Options{
		Bin:             cfg.Brain.Bin,
		SessionID:       cfg.Brain.SessionID,
		AgentCommand:    cfg.Brain.AgentCommand,
		SessionsCommand: cfg.Brain.SessionsCommand,
		Timeout:         cfg.Executor.BrainTimeout,
		StatusTimeout:   cfg.Brain.StatusTimeout,
	}, runner)

	// 2. 指令执行与路由
	tracker := task.NewTracker(0)
	executor := task.NewTaskExecutor(task.ExecutorOptions{
		Shell:        cfg.Executor.Shell,
		ShellTimeout: cfg.Executor.ShellTimeout,
	}, identity, conn, runner, brainClient, tracker)

	seen := dedupe.New(cfg.Agent.CommandCacheTTL, cfg.Agent.CommandCacheSize)
	commandRouter := command.NewCommandRouter(command.RouterOptions{
		TrustedSenders: cfg.Agent.TrustedSenders,
		ReplyTarget:    cfg.Agent.ReplyTarget,
	}, identity, conn, executor, seen)
	commandRouter.Register(relay.Dispatcher)

	// 3. 流量审计（仅 warden）
	auditor := audit.NewTrafficAuditor(identity, audit.AuditorOptions{
		FilePath:   cfg.Audit.FilePath,
		MaxSize:    cfg.Audit.MaxSize,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAge:     cfg.Audit.MaxAge,
		Compress:   cfg.Audit.Compress,
		QueueSize:  cfg.Audit.QueueSize,
	}, auditMirror(cfg, identity))
	relay.Dispatcher.Observe(auditor.Observe)

	// 4. 状态上报，每次认证成功立即上报一次
	collector := pkgMonitor.NewCollector(cfg.Report.DiskPath)
	reporting := monitor.NewReportingService(identity, conn, collector, brainClient, cfg.Report.Interval)
	conn.OnConnected(func(ctx context.Context) {
		if err := reporting.ReportNow(ctx); err != nil {
			logger.LogSystemEvent("Setup", "InitialReport", fmt.Sprintf("Initial report failed: %v", err), logger.WarnLevel, nil)
		}
	})

	return &CoreModule{
		Runner:        runner,
		Brain:         brainClient,
		Tracker:       tracker,
		Executor:      executor,
		CommandRouter: commandRouter,
		Auditor:       auditor,
		Reporting:     reporting,
	}
}

// auditMirror 审计 Redis 镜像，未启用时返回 nil
func auditMirror(cfg *config.Config, identity model.AgentIdentity) audit.Sink {
	if !identity.IsWarden() || cfg.Audit.Redis == nil || !cfg.Audit.Redis.Enabled {
		return nil
	}
	redisCfg := cfg.Audit.Redis
	logger.LogSystemEvent("Setup", "AuditMirror", "Mirroring traffic audit to redis stream", logger.InfoLevel, map[string]interface{}{
		"addr":   redisCfg.Addr,
		"stream": redisCfg.Stream,
	})
	return audit.NewRedisSink(audit.RedisOptions{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
		Stream:   redisCfg.Stream,
		MaxLen:   redisCfg.MaxLen,
		Timeout:  redisCfg.Timeout,
	})
}

package setup

import (
	"net/http"

	"clownetagent/internal/app/agent/router"
	"clownetagent/internal/executor/brain"
	"clownetagent/internal/executor/system"
	"clownetagent/internal/service/audit"
	"clownetagent/internal/service/client"
	"clownetagent/internal/service/command"
	"clownetagent/internal/service/monitor"
	"clownetagent/internal/service/task"
)

// RelayModule 中继连接模块
type RelayModule struct {
	Dispatcher *client.Dispatcher
	Connection client.ConnectionManager
}

// CoreModule 指令执行、上报与审计模块
type CoreModule struct {
	Runner        system.ProcessRunner
	Brain         brain.Client
	Tracker       *task.Tracker
	Executor      task.TaskExecutor
	CommandRouter *command.CommandRouter
	Auditor       audit.TrafficAuditor
	Reporting     monitor.ReportingService
}

// ServerModule 本地健康检查服务模块
type ServerModule struct {
	Router     *router.Router
	HTTPServer *http.Server
}

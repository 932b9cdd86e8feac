package agent

import (
	"time"

	"clownetagent/internal/app/agent/router"
	"clownetagent/internal/pkg/version"
	"clownetagent/internal/service/task"
)

// statusProvider 为本地服务汇总运行状态
type statusProvider struct {
	app *App
}

func (s *statusProvider) Health() router.HealthReport {
	a := s.app
	report := router.HealthReport{
		AgentID:    a.identity.ID(),
		Role:       a.identity.Role(),
		Hostname:   a.identity.Hostname(),
		Version:    version.GetVersion(),
		Uptime:     time.Since(a.startedAt).Round(time.Second).String(),
		Connection: a.relay.Connection.Snapshot(),
		Tasks:      a.core.Tracker.Stats(),
		Audit:      a.core.Auditor.Stats(),
	}
	if last := a.core.Reporting.LastReportAt(); !last.IsZero() {
		report.LastReportAt = &last
	}

	report.Status = "healthy"
	if !report.Healthy() {
		report.Status = "degraded"
	}
	return report
}

func (s *statusProvider) ListTasks() []task.TaskRecord {
	return s.app.core.Tracker.List()
}

func (s *statusProvider) GetTask(id string) (task.TaskRecord, bool) {
	return s.app.core.Tracker.Get(id)
}

/**
 * 状态上报服务
 * @author: sun977
 * @date: 2025.10.21
 * @description: 周期向中继上报主机规格、进程元信息与 Brain 活跃会话
 * @func:
 *  1. 连接建立后立即上报一次，之后按间隔上报
 *  2. 每次上报都重新采集，不复用上一次的数据
 *  3. warden 角色额外发送 traffic_log 心跳标记
 */
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"clownetagent/internal/core/model"
	"clownetagent/internal/executor/brain"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
	pkgMonitor "clownetagent/internal/pkg/monitor"
	"clownetagent/internal/pkg/version"
)

// RelaySession 上报所需的连接能力，由连接管理器实现
type RelaySession interface {
	Send(event string, payload interface{}) error
	IsConnected() bool
	Latency() (time.Duration, bool)
}

// ReportingService 状态上报服务接口
type ReportingService interface {
	// Start 开启周期上报
	Start(ctx context.Context)

	// Stop 停止周期上报
	Stop()

	// ReportNow 立即上报一次
	ReportNow(ctx context.Context) error

	// BuildReport 采集一份上报数据
	BuildReport(ctx context.Context) *modelComm.ReportPayload

	// SetInterval 调整上报间隔，下一个周期生效
	SetInterval(interval time.Duration)

	// LastReportAt 最近一次成功上报的时间
	LastReportAt() time.Time
}

// reportingService 状态上报实现
type reportingService struct {
	identity  model.AgentIdentity
	session   RelaySession
	collector pkgMonitor.Collector
	brain     brain.Client

	mu         sync.RWMutex
	interval   time.Duration
	lastReport time.Time

	intervalCh chan time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewReportingService 创建状态上报服务
func NewReportingService(
	identity model.AgentIdentity,
	session RelaySession,
	collector pkgMonitor.Collector,
	brainClient brain.Client,
	interval time.Duration,
) ReportingService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &reportingService{
		identity:   identity,
		session:    session,
		collector:  collector,
		brain:      brainClient,
		interval:   interval,
		intervalCh: make(chan time.Duration, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start 开启周期上报
func (s *reportingService) Start(ctx context.Context) {
	go func() {
		s.mu.RLock()
		interval := s.interval
		s.mu.RUnlock()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case d := <-s.intervalCh:
				ticker.Reset(d)
			case <-ticker.C:
				if !s.session.IsConnected() {
					continue
				}
				if err := s.ReportNow(ctx); err != nil {
					logger.LogSystemEvent("ReportingService", "Report", fmt.Sprintf("Periodic report failed: %v", err), logger.WarnLevel, nil)
				}
			}
		}
	}()
}

// Stop 停止周期上报
func (s *reportingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// SetInterval 调整上报间隔
func (s *reportingService) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	changed := s.interval != interval
	s.interval = interval
	s.mu.Unlock()
	if !changed {
		return
	}

	// 只保留最新的间隔
	select {
	case <-s.intervalCh:
	default:
	}
	s.intervalCh <- interval
}

// LastReportAt 最近一次成功上报的时间
func (s *reportingService) LastReportAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// ReportNow 采集并发送一次上报
func (s *reportingService) ReportNow(ctx context.Context) error {
	report := s.BuildReport(ctx)
	if err := s.session.Send(modelComm.EventReport, report); err != nil {
		return err
	}

	if s.identity.IsWarden() {
		marker := modelComm.TrafficLogPayload{
			Type:      modelComm.TrafficTypeWardenHeartbeat,
			AgentID:   s.identity.ID(),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := s.session.Send(modelComm.EventTrafficLog, marker); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastReport = time.Now()
	s.mu.Unlock()
	return nil
}

// BuildReport 采集上报数据，单项采集失败只影响对应字段
func (s *reportingService) BuildReport(ctx context.Context) *modelComm.ReportPayload {
	specs := &modelComm.Specs{Hostname: s.identity.Hostname()}

	if info, err := s.collector.HostInfo(ctx); err != nil {
		logger.LogSystemEvent("ReportingService", "HostInfo", err.Error(), logger.WarnLevel, nil)
	} else {
		if info.Hostname != "" {
			specs.Hostname = info.Hostname
		}
		specs.OS = info.OS
		specs.Platform = info.Platform
		specs.Arch = info.Arch
		specs.CPUModel = info.CPUModel
		specs.CPUCores = info.CPUCores
		specs.RAMTotal = info.MemoryTotal
	}

	if metrics, err := s.collector.SystemMetrics(ctx); err != nil {
		logger.LogSystemEvent("ReportingService", "SystemMetrics", err.Error(), logger.WarnLevel, nil)
		specs.SampledAt = time.Now().UnixMilli()
	} else {
		specs.CPUPercent = metrics.CPUUsage
		specs.RAMPercent = metrics.MemoryUsage
		specs.DiskPercent = metrics.DiskUsage
		specs.NetSent = metrics.NetworkBytesSent
		specs.NetRecv = metrics.NetworkBytesRecv
		specs.UptimeSeconds = metrics.UptimeSeconds
		specs.SampledAt = metrics.SampledAt.UnixMilli()
	}

	if latency, ok := s.session.Latency(); ok {
		ms := float64(latency) / float64(time.Millisecond)
		specs.LatencyMS = &ms
	}

	return &modelComm.ReportPayload{
		Specs: specs,
		Metadata: &modelComm.ReportMetadata{
			PID:       os.Getpid(),
			BrainPath: s.brain.Path(),
			Version:   version.GetVersion(),
			Role:      s.identity.Role(),
		},
		Sessions: s.activeSessions(ctx),
	}
}

// activeSessions 查询失败时上报空列表
func (s *reportingService) activeSessions(ctx context.Context) []modelComm.BrainSession {
	sessions, err := s.brain.ListActiveSessions(ctx)
	if err != nil {
		logger.LogSystemEvent("ReportingService", "Sessions", fmt.Sprintf("Failed to list brain sessions: %v", err), logger.DebugLevel, nil)
		return []modelComm.BrainSession{}
	}
	if sessions == nil {
		return []modelComm.BrainSession{}
	}
	return sessions
}

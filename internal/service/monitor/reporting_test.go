package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clownetagent/internal/core/model"
	"clownetagent/internal/executor/brain"
	modelComm "clownetagent/internal/model/client"
	pkgMonitor "clownetagent/internal/pkg/monitor"
)

// ==================== 测试替身 ====================

type sentEvent struct {
	event   string
	payload interface{}
}

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	sent      []sentEvent
	err       error
}

func (s *fakeSession) Send(event string, payload interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEvent{event: event, payload: payload})
	return nil
}

func (s *fakeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) Latency() (time.Duration, bool) { return 25 * time.Millisecond, true }

func (s *fakeSession) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sent))
	for _, e := range s.sent {
		names = append(names, e.event)
	}
	return names
}

// countingCollector 每次采集返回递增的数值
type countingCollector struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCollector) SystemMetrics(ctx context.Context) (*pkgMonitor.SystemMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &pkgMonitor.SystemMetrics{
		CPUUsage:      float64(c.calls),
		MemoryUsage:   50,
		UptimeSeconds: uint64(c.calls),
		SampledAt:     time.Now(),
	}, nil
}

func (c *countingCollector) HostInfo(ctx context.Context) (*pkgMonitor.HostInfo, error) {
	return &pkgMonitor.HostInfo{Hostname: "box", OS: "linux", Arch: "amd64", CPUCores: 8, MemoryTotal: 1 << 30}, nil
}

type fakeBrain struct {
	sessions []modelComm.BrainSession
	err      error
}

func (b *fakeBrain) Delegate(ctx context.Context, message string) (*brain.Reply, error) {
	return nil, errors.New("not used")
}

func (b *fakeBrain) ListActiveSessions(ctx context.Context) ([]modelComm.BrainSession, error) {
	return b.sessions, b.err
}

func (b *fakeBrain) Path() string { return "/opt/openclaw" }

func newTestReporting(role string, session RelaySession, b brain.Client) ReportingService {
	identity := model.NewAgentIdentity("node-box-1", "box", role)
	return NewReportingService(identity, session, &countingCollector{}, b, time.Hour)
}

// ==================== 测试 ====================

func TestReportingService_ReportNow(t *testing.T) {
	session := &fakeSession{connected: true}
	svc := newTestReporting(model.RoleWorker, session, &fakeBrain{sessions: []modelComm.BrainSession{{"key": "main"}}})

	require.NoError(t, svc.ReportNow(context.Background()))
	assert.Equal(t, []string{modelComm.EventReport}, session.events())
	assert.False(t, svc.LastReportAt().IsZero())

	report := session.sent[0].payload.(*modelComm.ReportPayload)
	assert.Equal(t, "box", report.Specs.Hostname)
	assert.Equal(t, 8, report.Specs.CPUCores)
	require.NotNil(t, report.Specs.LatencyMS)
	assert.Equal(t, 25.0, *report.Specs.LatencyMS)
	assert.Equal(t, "/opt/openclaw", report.Metadata.BrainPath)
	assert.Equal(t, model.RoleWorker, report.Metadata.Role)
	assert.NotZero(t, report.Metadata.PID)
	assert.Len(t, report.Sessions, 1)
}

func TestReportingService_ResamplesEveryReport(t *testing.T) {
	session := &fakeSession{connected: true}
	svc := newTestReporting(model.RoleWorker, session, &fakeBrain{})

	first := svc.BuildReport(context.Background())
	second := svc.BuildReport(context.Background())

	assert.NotEqual(t, first.Specs.CPUPercent, second.Specs.CPUPercent)
	assert.NotEqual(t, first.Specs.UptimeSeconds, second.Specs.UptimeSeconds)
}

func TestReportingService_SessionsFailureReportsEmptyList(t *testing.T) {
	svc := newTestReporting(model.RoleWorker, &fakeSession{}, &fakeBrain{err: errors.New("brain missing")})

	report := svc.BuildReport(context.Background())
	require.NotNil(t, report.Sessions)
	assert.Empty(t, report.Sessions)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessions":[]`)
}

func TestReportingService_WardenHeartbeatMarker(t *testing.T) {
	session := &fakeSession{connected: true}
	svc := newTestReporting(model.RoleWarden, session, &fakeBrain{})

	require.NoError(t, svc.ReportNow(context.Background()))
	assert.Equal(t, []string{modelComm.EventReport, modelComm.EventTrafficLog}, session.events())

	marker := session.sent[1].payload.(modelComm.TrafficLogPayload)
	assert.Equal(t, modelComm.TrafficTypeWardenHeartbeat, marker.Type)
	assert.Equal(t, "node-box-1", marker.AgentID)
	assert.NotZero(t, marker.Timestamp)
}

func TestReportingService_ReportNowDisconnected(t *testing.T) {
	svc := newTestReporting(model.RoleWorker, &fakeSession{err: modelComm.ErrNotConnected}, &fakeBrain{})

	assert.ErrorIs(t, svc.ReportNow(context.Background()), modelComm.ErrNotConnected)
	assert.True(t, svc.LastReportAt().IsZero())
}

func TestReportingService_PeriodicReports(t *testing.T) {
	session := &fakeSession{connected: true}
	identity := model.NewAgentIdentity("node-box-1", "box", model.RoleWorker)
	svc := NewReportingService(identity, session, &countingCollector{}, &fakeBrain{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.SetInterval(20 * time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(session.events()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

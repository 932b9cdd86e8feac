/**
 * 中继连接管理
 * @author: sun977
 * @date: 2025.10.21
 * @description: 维护到中继的长连接，负责认证握手、断线重连、出站串行发送与入站分发
 * @func: 连接失败永不致命，按指数退避无限重试；认证成功后才视为已连接
 */
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/backoff"
	"clownetagent/internal/pkg/logger"
	"clownetagent/internal/pkg/transport"
	"clownetagent/internal/pkg/version"
)

// 连接状态
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// SessionSnapshot 连接状态快照，供健康检查与状态上报使用
type SessionSnapshot struct {
	State              string    `json:"state"`
	RelayURL           string    `json:"relay_url"`
	Attempts           int       `json:"attempts"`
	NextDelay          string    `json:"next_delay"`
	LastConnectedAt    time.Time `json:"last_connected_at,omitempty"`
	LastDisconnectedAt time.Time `json:"last_disconnected_at,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	Sent               uint64    `json:"sent"`
	Dropped            uint64    `json:"dropped"`
	Received           uint64    `json:"received"`
	LatencyMS          *float64  `json:"latency_ms,omitempty"`
}

// ConnectionManager 中继连接管理接口
type ConnectionManager interface {
	// Run 阻塞运行连接循环，直到 ctx 取消
	Run(ctx context.Context) error

	// Send 发送一个出站事件，未连接时丢弃并返回 ErrNotConnected
	Send(event string, payload interface{}) error

	// IsConnected 是否已完成认证
	IsConnected() bool

	// Latency 最近一次 ping 往返耗时
	Latency() (time.Duration, bool)

	// Snapshot 连接状态快照
	Snapshot() SessionSnapshot

	// OnConnected 注册认证成功回调，每次重连成功都会触发
	OnConnected(fn func(ctx context.Context))

	// Identity Agent身份
	Identity() model.AgentIdentity
}

// ConnectionOptions 连接管理参数
type ConnectionOptions struct {
	RelayURL         string
	Token            string
	Tenant           string
	HandshakeTimeout time.Duration
}

// connectionManager 连接管理实现
type connectionManager struct {
	opts       ConnectionOptions
	identity   model.AgentIdentity
	dialer     transport.Dialer
	dispatcher *Dispatcher
	backoff    *backoff.Policy

	// sleep 退避等待，测试中替换
	sleep func(ctx context.Context, d time.Duration) error

	sendMu sync.Mutex // 串行化所有出站写入

	mu                 sync.RWMutex
	conn               transport.Conn
	state              string
	lastConnectedAt    time.Time
	lastDisconnectedAt time.Time
	lastError          string
	sent               uint64
	dropped            uint64
	received           uint64
	hooks              []func(ctx context.Context)
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(
	opts ConnectionOptions,
	identity model.AgentIdentity,
	dialer transport.Dialer,
	dispatcher *Dispatcher,
	policy *backoff.Policy,
) ConnectionManager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &connectionManager{
		opts:       opts,
		identity:   identity,
		dialer:     dialer,
		dispatcher: dispatcher,
		backoff:    policy,
		sleep:      sleepContext,
		state:      StateDisconnected,
	}
}

// Identity Agent身份
func (m *connectionManager) Identity() model.AgentIdentity {
	return m.identity
}

// OnConnected 注册认证成功回调
func (m *connectionManager) OnConnected(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Run 连接循环
func (m *connectionManager) Run(ctx context.Context) error {
	logger.LogSystemEvent("ConnectionManager", "Run", "Starting relay connection loop", logger.InfoLevel, map[string]interface{}{
		"relay": m.opts.RelayURL,
		"agent": m.identity.ID(),
		"role":  m.identity.Role(),
	})

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := m.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := m.backoff.Next()
		m.recordError(err)
		logger.LogSystemEvent("ConnectionManager", "Reconnect",
			fmt.Sprintf("Relay session ended: %v, retrying in %s", err, delay), logger.WarnLevel,
			map[string]interface{}{"attempt": m.backoff.Attempts(), "delay": delay.String()})

		if err := m.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// runSession 一次完整的连接周期：拨号、握手、读循环
func (m *connectionManager) runSession(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relay session panicked: %v", r)
		}
	}()

	m.setState(StateConnecting)

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return &modelComm.TransportError{Op: "dial", Err: err}
	}

	if err := m.handshake(ctx, conn); err != nil {
		conn.Close()
		m.setState(StateDisconnected)
		return &modelComm.TransportError{Op: "handshake", Err: err}
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.lastConnectedAt = time.Now()
	m.lastError = ""
	hooks := append([]func(ctx context.Context){}, m.hooks...)
	m.mu.Unlock()
	m.backoff.Reset()

	logger.LogSystemEvent("ConnectionManager", "Connected", "Authenticated with relay", logger.InfoLevel, map[string]interface{}{
		"relay": m.opts.RelayURL,
		"agent": m.identity.ID(),
	})

	for _, hook := range hooks {
		go hook(ctx)
	}

	err = m.readLoop(ctx, conn)
	m.disconnect(conn)
	return &modelComm.TransportError{Op: "read", Err: err}
}

// handshake 发送认证帧并等待 auth_ok / auth_error
func (m *connectionManager) handshake(ctx context.Context, conn transport.Conn) error {
	auth := modelComm.AuthRequest{
		Token:    m.opts.Token,
		AgentID:  m.identity.ID(),
		Role:     m.identity.Role(),
		Hostname: m.identity.Hostname(),
		Version:  version.GetVersion(),
		TenantID: m.opts.Tenant,
	}
	env, err := modelComm.NewEnvelope(modelComm.EventAuth, auth)
	if err != nil {
		return err
	}

	m.sendMu.Lock()
	err = conn.WriteEnvelope(env)
	m.sendMu.Unlock()
	if err != nil {
		return err
	}

	type ackResult struct {
		env *modelComm.Envelope
		err error
	}
	ackCh := make(chan ackResult, 1)

	go func() {
		for {
			in, err := conn.ReadEnvelope()
			if err != nil {
				ackCh <- ackResult{err: err}
				return
			}
			if in.Event == modelComm.EventAuthOK || in.Event == modelComm.EventAuthError {
				ackCh <- ackResult{env: in}
				return
			}
			logger.LogRelayEvent(logger.DirectionInbound, in.Event, map[string]interface{}{"dropped": "before auth_ok"})
		}
	}()

	timer := time.NewTimer(m.opts.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-timer.C:
		// 关闭连接让读协程退出
		conn.Close()
		return modelComm.ErrHandshakeTimeout
	case res := <-ackCh:
		if res.err != nil {
			return res.err
		}
		if res.env.Event == modelComm.EventAuthError {
			var failure modelComm.AuthFailure
			_ = modelComm.Decode(res.env.Data, &failure)
			if failure.Reason != "" {
				return fmt.Errorf("%w: %s", modelComm.ErrAuthRejected, failure.Reason)
			}
			return modelComm.ErrAuthRejected
		}
		return nil
	}
}

// readLoop 读取入站事件并分发，连接出错或 ctx 取消时返回
func (m *connectionManager) readLoop(ctx context.Context, conn transport.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, modelComm.ErrInvalidPayload) {
				logger.LogRelayEvent(logger.DirectionInbound, "invalid", map[string]interface{}{"error": err.Error()})
				continue
			}
			return err
		}

		m.mu.Lock()
		m.received++
		m.mu.Unlock()
		logger.LogRelayEvent(logger.DirectionInbound, env.Event, nil)

		if err := m.dispatcher.Dispatch(ctx, env); err != nil {
			level := logger.WarnLevel
			if errors.Is(err, modelComm.ErrUnknownEvent) {
				level = logger.DebugLevel
			}
			logger.LogSystemEvent("ConnectionManager", "Dispatch", err.Error(), level, map[string]interface{}{"event": env.Event})
		}
	}
}

// Send 串行发送出站事件
func (m *connectionManager) Send(event string, payload interface{}) error {
	env, err := modelComm.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		logger.LogRelayEvent(logger.DirectionOutbound, event, map[string]interface{}{"dropped": modelComm.ErrNotConnected.Error()})
		return modelComm.ErrNotConnected
	}

	if err := conn.WriteEnvelope(env); err != nil {
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		// 写失败后关闭连接，读循环随之退出并进入重连
		conn.Close()
		logger.LogRelayEvent(logger.DirectionOutbound, event, map[string]interface{}{"dropped": err.Error()})
		return &modelComm.TransportError{Op: "write", Err: err}
	}

	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	logger.LogRelayEvent(logger.DirectionOutbound, event, nil)
	return nil
}

// IsConnected 是否已认证
func (m *connectionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected && m.conn != nil
}

// Latency 最近一次往返耗时
func (m *connectionManager) Latency() (time.Duration, bool) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return 0, false
	}
	return conn.Latency()
}

// Snapshot 连接状态快照
func (m *connectionManager) Snapshot() SessionSnapshot {
	m.mu.RLock()
	snap := SessionSnapshot{
		State:              m.state,
		RelayURL:           m.opts.RelayURL,
		LastConnectedAt:    m.lastConnectedAt,
		LastDisconnectedAt: m.lastDisconnectedAt,
		LastError:          m.lastError,
		Sent:               m.sent,
		Dropped:            m.dropped,
		Received:           m.received,
	}
	m.mu.RUnlock()

	snap.Attempts = m.backoff.Attempts()
	snap.NextDelay = m.backoff.Peek().String()
	if latency, ok := m.Latency(); ok {
		ms := float64(latency) / float64(time.Millisecond)
		snap.LatencyMS = &ms
	}
	return snap
}

func (m *connectionManager) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *connectionManager) recordError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

// disconnect 清理当前连接，持有 sendMu 保证没有写入与之交错
func (m *connectionManager) disconnect(conn transport.Conn) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	conn.Close()

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.state = StateDisconnected
	m.lastDisconnectedAt = time.Now()
	m.mu.Unlock()

	logger.LogSystemEvent("ConnectionManager", "Disconnected", "Relay connection closed", logger.WarnLevel, nil)
}

// sleepContext 可被 ctx 打断的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

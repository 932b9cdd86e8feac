/**
 * 流量审计
 * @author: sun977
 * @date: 2025.10.21
 * @description: warden 角色把观察到的每个入站事件追加为一行 JSON
 * @func:
 *  1. worker 角色不做任何记录，也不创建审计文件
 *  2. 写入在独立协程中完成，队列满时丢弃，不阻塞读循环
 *  3. 审计文件在第一次写入时才打开
 */
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
)

// 审计行中的保留字段
const (
	FieldEvent     = "_event"
	FieldTimestamp = "_ts"
	FieldPayload   = "payload" // 载荷不是对象时使用
)

// AuditorOptions 审计参数
type AuditorOptions struct {
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	QueueSize  int
}

// AuditStats 审计计数
type AuditStats struct {
	Enabled bool   `json:"enabled"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// TrafficAuditor 流量审计接口
type TrafficAuditor interface {
	// Observe 记录一个入站事件，不阻塞
	Observe(env *modelComm.Envelope)
	// Close 写完队列中的记录后关闭
	Close() error
	// Stats 审计计数
	Stats() AuditStats
}

// NewTrafficAuditor 创建流量审计，非 warden 角色返回空实现
// mirror 可为 nil
func NewTrafficAuditor(identity model.AgentIdentity, opts AuditorOptions, mirror Sink) TrafficAuditor {
	if !identity.IsWarden() {
		return noopAuditor{}
	}

	if opts.FilePath == "" {
		opts.FilePath = "./logs/traffic.jsonl"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	file := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	return newWardenAuditor(file, mirror, opts.QueueSize)
}

// ==================== worker ====================

type noopAuditor struct{}

func (noopAuditor) Observe(*modelComm.Envelope) {}
func (noopAuditor) Close() error                { return nil }
func (noopAuditor) Stats() AuditStats           { return AuditStats{} }

// ==================== warden ====================

type auditRecord struct {
	event string
	line  []byte
}

type wardenAuditor struct {
	file   io.WriteCloser
	mirror Sink

	mu     sync.RWMutex // 保护 closed 与 queue 的关闭
	closed bool
	queue  chan auditRecord
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
	now     func() time.Time
}

func newWardenAuditor(file io.WriteCloser, mirror Sink, queueSize int) *wardenAuditor {
	a := &wardenAuditor{
		file:   file,
		mirror: mirror,
		queue:  make(chan auditRecord, queueSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go a.loop()
	return a
}

// Observe 构造审计行并入队
func (a *wardenAuditor) Observe(env *modelComm.Envelope) {
	line, err := BuildLine(env.Event, env.Data, a.now())
	if err != nil {
		a.failed.Add(1)
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- auditRecord{event: env.Event, line: line}:
	default:
		a.dropped.Add(1)
	}
}

// loop 串行写入文件与镜像
func (a *wardenAuditor) loop() {
	defer close(a.done)
	for rec := range a.queue {
		if _, err := a.file.Write(append(rec.line, '\n')); err != nil {
			a.report(&modelComm.AuditError{Sink: "file", Err: err})
		} else {
			a.written.Add(1)
		}

		if a.mirror != nil {
			if err := a.mirror.Write(rec.event, rec.line); err != nil {
				a.report(&modelComm.AuditError{Sink: a.mirror.Name(), Err: err})
			}
		}
	}
}

// report 审计失败只记录，不影响主流程
func (a *wardenAuditor) report(err *modelComm.AuditError) {
	a.failed.Add(1)
	logger.LogSystemEvent("TrafficAuditor", "Write", err.Error(), logger.WarnLevel, nil)
}

// Close 关闭队列，等待写完后关闭文件与镜像
func (a *wardenAuditor) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done

	var firstErr error
	if a.mirror != nil {
		firstErr = a.mirror.Close()
	}
	if err := a.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Stats 审计计数
func (a *wardenAuditor) Stats() AuditStats {
	return AuditStats{
		Enabled: true,
		Written: a.written.Load(),
		Dropped: a.dropped.Load(),
		Failed:  a.failed.Load(),
	}
}

// BuildLine 生成一行审计记录
// 对象载荷的字段原样保留并追加 _event/_ts，其他载荷放在 payload 字段下
func BuildLine(event string, data json.RawMessage, ts time.Time) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(data) == 0 || json.Unmarshal(data, &fields) != nil || fields == nil {
		fields = map[string]json.RawMessage{}
		payload := data
		if len(payload) == 0 || !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		fields[FieldPayload] = payload
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	tsJSON, err := json.Marshal(ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	fields[FieldEvent] = eventJSON
	fields[FieldTimestamp] = tsJSON

	return json.Marshal(fields)
}

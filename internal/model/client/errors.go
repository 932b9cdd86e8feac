/**
 * 通信错误定义
 * @author: sun977
 * @date: 2025.10.21
 * @description: Agent与中继通信、指令校验、执行、审计的错误分类
 * @func: TransportError / ValidationError / ExecutionError / ErrTimeout / AuditError
 */
package client

import (
	"errors"
	"fmt"
)

// ==================== 哨兵错误 ====================

var (
	// 连接相关错误
	ErrNotConnected     = errors.New("not connected to relay")          // 未连接到中继
	ErrAuthRejected     = errors.New("authentication rejected")         // 中继拒绝认证
	ErrHandshakeTimeout = errors.New("handshake timeout")               // 等待认证应答超时
	ErrInvalidPayload   = errors.New("invalid event payload")           // 事件载荷无法解析
	ErrTimeout          = errors.New("Timeout")                         // 执行超时，文本即回复内容
	ErrUnknownEvent     = errors.New("no handler registered for event") // 分发表中没有对应处理器
)

// ==================== 分类错误 ====================

// TransportError 连接/发送失败，由重连退避处理，永不致命
type TransportError struct {
	Op  string // dial / handshake / read / write
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError 指令格式错误，作为正常回复返回给发送方
type ValidationError struct {
	Usage  string // 用法提示，例如 "Usage: /join #room"
	Reason string // 具体原因
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Usage
	}
	return fmt.Sprintf("%s (%s)", e.Usage, e.Reason)
}

// ExecutionError 子进程非零退出或启动失败
type ExecutionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed (code %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("execution failed (code %d): %s", e.ExitCode, e.Stderr)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// AuditError 审计写入失败，只记录不上抛
type AuditError struct {
	Sink string // file / redis
	Err  error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("audit %s: %v", e.Sink, e.Err)
}

func (e *AuditError) Unwrap() error { return e.Err }

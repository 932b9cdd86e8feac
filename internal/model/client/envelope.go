/**
 * 中继事件信封
 * @author: sun977
 * @date: 2025.10.21
 * @description: websocket帧格式 {"event": "...", "data": {...}} 以及事件名常量
 */
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ==================== 事件名 ====================

// 握手
const (
	EventAuth      = "auth"
	EventAuthOK    = "auth_ok"
	EventAuthError = "auth_error"
)

// 入站事件
const (
	EventStateSync     = "state_sync"
	EventMessage       = "message"
	EventCommand       = "command"
	EventDirectMessage = "direct_message"
)

// 出站事件
const (
	EventReport     = "report"
	EventTaskResult = "task_result"
	EventTaskUpdate = "task_update"
	EventChat       = "chat"
	EventJoinRoom   = "join_room"
	EventTrafficLog = "traffic_log"
	EventCommandAck = "command_ack"
)

// Envelope 中继帧
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 编码出站帧
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrInvalidPayload)
	}

	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Validator 可校验的载荷
type Validator interface {
	Validate() error
}

// Decode 将帧载荷解码到类型化结构并校验
// 空载荷解码为零值，再交给 Validate 判断
func Decode(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	if validator, ok := v.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

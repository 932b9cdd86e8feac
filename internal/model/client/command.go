/**
 * 指令相关模型
 * @author: sun977
 * @date: 2025.10.21
 * @description: 中继下发的入站事件载荷：command / message / direct_message / state_sync
 * @func: 解码后经 Validate 校验，缺失的可选字段保持零值
 */
package client

import (
	"encoding/json"
	"fmt"
)

// ==================== 入站载荷 ====================

// CommandPayload 结构化指令 {cmd, id}
type CommandPayload struct {
	Cmd     string `json:"cmd"`                // 指令文本
	ID      string `json:"id,omitempty"`       // 任务ID（可选）
	TraceID string `json:"trace_id,omitempty"` // 链路ID（可选，仅用于日志）
}

// Validate 校验结构化指令
func (p *CommandPayload) Validate() error {
	if p.Cmd == "" {
		return fmt.Errorf("cmd is required")
	}
	return nil
}

// MessageTypeCommand message.type 为 command 时视为指令
const MessageTypeCommand = "command"

// MessagePayload 通用消息 {content, senderId, type, taskId}
type MessagePayload struct {
	Content  string `json:"content"`
	SenderID string `json:"senderId,omitempty"`
	Type     string `json:"type,omitempty"`
	TaskID   string `json:"taskId,omitempty"`
}

// Validate 校验通用消息
func (p *MessagePayload) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// DirectMessagePayload 私信 {from, msg}
type DirectMessagePayload struct {
	From string `json:"from"`
	Msg  string `json:"msg"`
}

// Validate 校验私信
func (p *DirectMessagePayload) Validate() error {
	if p.Msg == "" {
		return fmt.Errorf("msg is required")
	}
	return nil
}

// Sender 发送方，缺省为 unknown
func (p *DirectMessagePayload) Sender() string {
	if p.From == "" {
		return "unknown"
	}
	return p.From
}

// StateSyncPayload 状态同步，内容只记录不解析
type StateSyncPayload struct {
	Raw json.RawMessage
}

// UnmarshalJSON 保留原始载荷
func (p *StateSyncPayload) UnmarshalJSON(data []byte) error {
	p.Raw = append(p.Raw[:0], data...)
	return nil
}

// CommandAck 指令确认
type CommandAck struct {
	ID string `json:"id"`
}

/**
 * 核心指令模型
 * @author: sun977
 * @date: 2025.10.21
 * @description: 中继下发指令的类型化表示，以及执行结果与Agent身份
 */
package model

import (
	"fmt"
	"time"
)

// InstructionKind 指令类型
type InstructionKind string

const (
	InstructionShellExec     InstructionKind = "shell_exec"     // /exec <shell-text>
	InstructionBrainDelegate InstructionKind = "brain_delegate" // 默认路径，委派给Brain CLI
	InstructionJoinRoom      InstructionKind = "join_room"      // /join #room
	InstructionRelayMessage  InstructionKind = "relay_message"  // /relay <target> <message>
	InstructionMalformed     InstructionKind = "malformed"      // 载荷无法解析，仅携带任务ID
)

// Instruction 指令
// 仅与 Kind 对应的字段有效：
//   - ShellExec: Raw
//   - BrainDelegate: Text
//   - JoinRoom: Room
//   - RelayMessage: Target, Body
type Instruction struct {
	Kind    InstructionKind `json:"kind"`
	TaskID  string          `json:"task_id,omitempty"`  // 可选的任务关联ID
	ReplyTo string          `json:"reply_to,omitempty"` // 人类可读回复的接收方

	Raw    string `json:"raw,omitempty"`
	Text   string `json:"text,omitempty"`
	Room   string `json:"room,omitempty"`
	Target string `json:"target,omitempty"`
	Body   string `json:"body,omitempty"`
}

// ShellExec 构造Shell执行指令
func ShellExec(raw string) Instruction {
	return Instruction{Kind: InstructionShellExec, Raw: raw}
}

// BrainDelegate 构造Brain委派指令
func BrainDelegate(text string) Instruction {
	return Instruction{Kind: InstructionBrainDelegate, Text: text}
}

// JoinRoom 构造加入房间指令
func JoinRoom(room string) Instruction {
	return Instruction{Kind: InstructionJoinRoom, Room: room}
}

// RelayMessage 构造转发消息指令
func RelayMessage(target, body string) Instruction {
	return Instruction{Kind: InstructionRelayMessage, Target: target, Body: body}
}

// HasTask 是否携带任务ID
func (i Instruction) HasTask() bool {
	return i.TaskID != ""
}

// String 日志友好的描述
func (i Instruction) String() string {
	switch i.Kind {
	case InstructionShellExec:
		return fmt.Sprintf("exec(%q)", i.Raw)
	case InstructionJoinRoom:
		return fmt.Sprintf("join(%s)", i.Room)
	case InstructionRelayMessage:
		return fmt.Sprintf("relay(%s)", i.Target)
	case InstructionMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("brain(%d chars)", len(i.Text))
	}
}

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "RUNNING"
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusFail    TaskStatus = "FAIL"
)

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFail
}

// TaskResult 任务执行结果
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Kind       string        `json:"kind"`
	Status     TaskStatus    `json:"status"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	ExitCode   int           `json:"exit_code"`
	HumanReply string        `json:"human_reply"` // 回复给发送方的文本，同时作为task_result.output
	Duration   time.Duration `json:"duration"`
}

// Agent角色
const (
	RoleWorker = "worker"
	RoleWarden = "warden"
)

// AgentIdentity Agent身份，进程生命周期内不可变
type AgentIdentity struct {
	id       string
	hostname string
	role     string
}

// NewAgentIdentity 创建Agent身份
func NewAgentIdentity(id, hostname, role string) AgentIdentity {
	return AgentIdentity{id: id, hostname: hostname, role: role}
}

// ID Agent ID
func (a AgentIdentity) ID() string { return a.id }

// Hostname 主机名
func (a AgentIdentity) Hostname() string { return a.hostname }

// Role 角色
func (a AgentIdentity) Role() string { return a.role }

// IsWarden 是否为审计角色
func (a AgentIdentity) IsWarden() bool { return a.role == RoleWarden }

/**
 * 指令执行服务
 * @author: sun977
 * @date: 2025.10.21
 * @description: 执行分类后的指令并回报结果
 * @func:
 *  1. 携带任务ID时先上报 RUNNING，结束后上报且只上报一次终态
 *  2. 人类可读回复总是以 message 事件发回给发送方
 *  3. 执行过程中的 panic 转换为失败结果，不影响其他指令
 */
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clownetagent/internal/core/model"
	"clownetagent/internal/executor/brain"
	"clownetagent/internal/executor/system"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
)

// Sender 出站事件发送接口，由连接管理器实现
type Sender interface {
	Send(event string, payload interface{}) error
}

// TaskExecutor 指令执行接口
type TaskExecutor interface {
	// Execute 执行一条指令，返回终态结果
	Execute(ctx context.Context, instr model.Instruction) *model.TaskResult

	// Reject 以用法提示回复格式错误的指令，生命周期与正常指令一致
	Reject(ctx context.Context, instr model.Instruction, verr *modelComm.ValidationError) *model.TaskResult

	// Fail 直接以失败终态结束指令，用于无法解析的命令
	Fail(ctx context.Context, instr model.Instruction, cause error) *model.TaskResult

	// Tracker 任务记录
	Tracker() *Tracker
}

// ExecutorOptions 执行参数
type ExecutorOptions struct {
	Shell        string
	ShellTimeout time.Duration
}

// taskExecutor 指令执行实现
type taskExecutor struct {
	opts     ExecutorOptions
	identity model.AgentIdentity
	sender   Sender
	runner   system.ProcessRunner
	brain    brain.Client
	tracker  *Tracker
}

// NewTaskExecutor 创建指令执行服务
func NewTaskExecutor(
	opts ExecutorOptions,
	identity model.AgentIdentity,
	sender Sender,
	runner system.ProcessRunner,
	brainClient brain.Client,
	tracker *Tracker,
) TaskExecutor {
	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = 120 * time.Second
	}
	if tracker == nil {
		tracker = NewTracker(0)
	}
	return &taskExecutor{
		opts:     opts,
		identity: identity,
		sender:   sender,
		runner:   runner,
		brain:    brainClient,
		tracker:  tracker,
	}
}

// Tracker 任务记录
func (e *taskExecutor) Tracker() *Tracker {
	return e.tracker
}

// Execute 执行指令
func (e *taskExecutor) Execute(ctx context.Context, instr model.Instruction) *model.TaskResult {
	return e.lifecycle(instr, func() *model.TaskResult {
		return e.run(ctx, instr)
	})
}

// Reject 回复用法提示与具体原因
func (e *taskExecutor) Reject(ctx context.Context, instr model.Instruction, verr *modelComm.ValidationError) *model.TaskResult {
	return e.lifecycle(instr, func() *model.TaskResult {
		logger.LogTaskOperation(instr.TaskID, string(instr.Kind), "rejected", verr.Error(), nil)
		return &model.TaskResult{Status: model.TaskStatusSuccess, HumanReply: verr.Error()}
	})
}

// Fail 以失败终态结束指令
func (e *taskExecutor) Fail(ctx context.Context, instr model.Instruction, cause error) *model.TaskResult {
	return e.lifecycle(instr, func() *model.TaskResult {
		return &model.TaskResult{
			Status:     model.TaskStatusFail,
			ExitCode:   -1,
			HumanReply: fmt.Sprintf("Sidecar Error: %v", cause),
		}
	})
}

// lifecycle RUNNING -> 执行 -> 回复 -> 终态
func (e *taskExecutor) lifecycle(instr model.Instruction, body func() *model.TaskResult) *model.TaskResult {
	start := time.Now()
	recordID := e.tracker.Start(instr)

	if instr.HasTask() {
		e.send(modelComm.EventTaskUpdate, modelComm.TaskUpdatePayload{
			ID:      instr.TaskID,
			Status:  string(model.TaskStatusRunning),
			AgentID: e.identity.ID(),
			Result:  "",
		})
	}
	logger.LogTaskOperation(instr.TaskID, string(instr.Kind), "running", instr.String(), nil)

	result := e.safely(body)
	result.TaskID = instr.TaskID
	result.Kind = string(instr.Kind)
	result.Duration = time.Since(start)

	e.tracker.Finish(recordID, result)
	e.finish(instr, result)
	return result
}

// safely 执行体 panic 时返回失败结果
func (e *taskExecutor) safely(body func() *model.TaskResult) (result *model.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &model.TaskResult{
				Status:     model.TaskStatusFail,
				ExitCode:   -1,
				HumanReply: fmt.Sprintf("Sidecar Error: %v", r),
			}
		}
	}()
	return body()
}

// finish 回复发送方，并在携带任务ID时上报终态
func (e *taskExecutor) finish(instr model.Instruction, result *model.TaskResult) {
	if instr.ReplyTo != "" {
		e.send(modelComm.EventMessage, modelComm.ChatPayload{To: instr.ReplyTo, Msg: result.HumanReply})
	}

	if instr.HasTask() {
		e.send(modelComm.EventTaskResult, modelComm.TaskResultPayload{
			ID:      instr.TaskID,
			Status:  string(result.Status),
			AgentID: e.identity.ID(),
			Output:  result.HumanReply,
		})
	}

	status := "success"
	if result.Status == model.TaskStatusFail {
		status = "fail"
	}
	logger.LogTaskOperation(instr.TaskID, result.Kind, status, "instruction finished", map[string]interface{}{
		"exit_code": result.ExitCode,
		"duration":  result.Duration.String(),
		"reply_to":  instr.ReplyTo,
	})
}

// send 发送失败只记录，未连接时事件被丢弃
func (e *taskExecutor) send(event string, payload interface{}) {
	if err := e.sender.Send(event, payload); err != nil {
		logger.WithFields(map[string]interface{}{
			"path":  "task.taskExecutor.send",
			"event": event,
		}).Warnf("outbound event not delivered: %v", err)
	}
}

// ==================== 指令执行 ====================

func (e *taskExecutor) run(ctx context.Context, instr model.Instruction) *model.TaskResult {
	switch instr.Kind {
	case model.InstructionShellExec:
		return e.runShell(ctx, instr.Raw)
	case model.InstructionBrainDelegate:
		return e.runBrain(ctx, instr.Text)
	case model.InstructionJoinRoom:
		return e.joinRoom(instr.Room)
	case model.InstructionRelayMessage:
		return e.relayMessage(instr.Target, instr.Body)
	default:
		return &model.TaskResult{
			Status:     model.TaskStatusFail,
			ExitCode:   -1,
			HumanReply: fmt.Sprintf("Sidecar Error: unknown instruction kind %q", instr.Kind),
		}
	}
}

// runShell 执行 shell 命令
func (e *taskExecutor) runShell(ctx context.Context, command string) *model.TaskResult {
	res, err := e.runner.Run(ctx, system.ShellSpec(e.opts.Shell, command, e.opts.ShellTimeout))
	if err != nil {
		return failureResult(res, err)
	}

	result := &model.TaskResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr == "" {
			stderr = "Unknown error"
		}
		result.Status = model.TaskStatusFail
		result.HumanReply = fmt.Sprintf("EXEC_ERROR (Code %d): %s", res.ExitCode, stderr)
		return result
	}

	result.Status = model.TaskStatusSuccess
	result.HumanReply = "EXEC_RESULT:\n```\n" + res.Stdout + "\n```"
	return result
}

// runBrain 委派给 Brain CLI
func (e *taskExecutor) runBrain(ctx context.Context, text string) *model.TaskResult {
	reply, err := e.brain.Delegate(ctx, text)

	var execErr *modelComm.ExecutionError
	switch {
	case err == nil:
		return &model.TaskResult{
			Status:     model.TaskStatusSuccess,
			Stdout:     reply.Result.Stdout,
			Stderr:     reply.Result.Stderr,
			HumanReply: reply.Text,
		}
	case errors.As(err, &execErr) && execErr.Err == nil:
		// 非零退出：优先回复 stderr
		human := execErr.Stderr
		if human == "" {
			human = fmt.Sprintf("BRAIN_ERROR (Code %d)", execErr.ExitCode)
		}
		result := &model.TaskResult{Status: model.TaskStatusFail, ExitCode: execErr.ExitCode, HumanReply: human}
		if reply != nil && reply.Result != nil {
			result.Stdout = reply.Result.Stdout
			result.Stderr = reply.Result.Stderr
		}
		return result
	default:
		var res *system.ProcessResult
		if reply != nil {
			res = reply.Result
		}
		return failureResult(res, err)
	}
}

// joinRoom 请求中继把本 Agent 加入房间
func (e *taskExecutor) joinRoom(room string) *model.TaskResult {
	if err := e.sender.Send(modelComm.EventJoinRoom, modelComm.JoinRoomPayload{Room: room}); err != nil {
		return &model.TaskResult{Status: model.TaskStatusFail, ExitCode: -1, HumanReply: fmt.Sprintf("ERROR: %v", err)}
	}
	return &model.TaskResult{Status: model.TaskStatusSuccess, HumanReply: fmt.Sprintf("Joining %s...", room)}
}

// relayMessage 请求中继把消息转发给目标
func (e *taskExecutor) relayMessage(target, body string) *model.TaskResult {
	if err := e.sender.Send(modelComm.EventChat, modelComm.ChatPayload{To: target, Msg: body}); err != nil {
		return &model.TaskResult{Status: model.TaskStatusFail, ExitCode: -1, HumanReply: fmt.Sprintf("ERROR: %v", err)}
	}
	return &model.TaskResult{Status: model.TaskStatusSuccess, HumanReply: fmt.Sprintf("Relayed to %s", target)}
}

// failureResult 超时或启动失败
func failureResult(res *system.ProcessResult, err error) *model.TaskResult {
	if errors.Is(err, modelComm.ErrTimeout) {
		return &model.TaskResult{Status: model.TaskStatusFail, ExitCode: -1, HumanReply: modelComm.ErrTimeout.Error()}
	}

	result := &model.TaskResult{Status: model.TaskStatusFail, ExitCode: -1}
	if res != nil {
		result.Stderr = res.Stderr
	}
	cause := err
	var execErr *modelComm.ExecutionError
	if errors.As(err, &execErr) && execErr.Err != nil {
		cause = execErr.Err
	}
	result.HumanReply = fmt.Sprintf("EXEC_ERROR: %v", cause)
	return result
}

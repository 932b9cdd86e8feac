/**
 * 入站指令路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 处理 state_sync / message / command / direct_message 事件，分类后交给执行服务
 * @func:
 *  1. 每条指令在独立协程中执行，长任务不阻塞读循环
 *  2. command 事件按 id 去重并确认
 *  3. direct_message 只接受受信任发送方
 */
package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/dedupe"
	"clownetagent/internal/pkg/logger"
	"clownetagent/internal/service/client"
	"clownetagent/internal/service/task"
)

// RouterOptions 路由参数
type RouterOptions struct {
	TrustedSenders []string
	ReplyTarget    string // command 事件与缺少发送方的 message 的回复对象
}

// CommandRouter 入站指令路由
type CommandRouter struct {
	opts     RouterOptions
	identity model.AgentIdentity
	sender   task.Sender
	executor task.TaskExecutor
	seen     *dedupe.Cache
	trusted  map[string]struct{}

	wg sync.WaitGroup
}

// NewCommandRouter 创建指令路由
func NewCommandRouter(
	opts RouterOptions,
	identity model.AgentIdentity,
	sender task.Sender,
	executor task.TaskExecutor,
	seen *dedupe.Cache,
) *CommandRouter {
	if opts.ReplyTarget == "" {
		opts.ReplyTarget = "master-ui"
	}
	if seen == nil {
		seen = dedupe.New(0, 0)
	}
	trusted := make(map[string]struct{}, len(opts.TrustedSenders))
	for _, s := range opts.TrustedSenders {
		trusted[strings.TrimSpace(s)] = struct{}{}
	}
	return &CommandRouter{
		opts:     opts,
		identity: identity,
		sender:   sender,
		executor: executor,
		seen:     seen,
		trusted:  trusted,
	}
}

// Register 注册到事件分发表
func (r *CommandRouter) Register(d *client.Dispatcher) {
	d.Handle(modelComm.EventStateSync, r.HandleStateSync)
	d.Handle(modelComm.EventMessage, r.HandleMessage)
	d.Handle(modelComm.EventCommand, r.HandleCommand)
	d.Handle(modelComm.EventDirectMessage, r.HandleDirectMessage)
}

// HandleStateSync 记录状态同步
func (r *CommandRouter) HandleStateSync(ctx context.Context, env *modelComm.Envelope) error {
	var payload modelComm.StateSyncPayload
	if err := modelComm.Decode(env.Data, &payload); err != nil {
		return err
	}
	logger.LogSystemEvent("CommandRouter", "StateSync", "Received state sync from relay", logger.InfoLevel, map[string]interface{}{
		"bytes": len(payload.Raw),
	})
	return nil
}

// HandleMessage 处理通用消息，只有指令类消息会被执行
func (r *CommandRouter) HandleMessage(ctx context.Context, env *modelComm.Envelope) error {
	var payload modelComm.MessagePayload
	if err := modelComm.Decode(env.Data, &payload); err != nil {
		return err
	}
	if payload.SenderID != "" && payload.SenderID == r.identity.ID() {
		return nil
	}

	if payload.Type != modelComm.MessageTypeCommand && !HasSigil(payload.Content) {
		logger.LogSystemEvent("CommandRouter", "Chat", payload.Content, logger.InfoLevel, map[string]interface{}{
			"from": payload.SenderID,
		})
		return nil
	}

	replyTo := payload.SenderID
	if replyTo == "" {
		replyTo = r.opts.ReplyTarget
	}
	r.Route(ctx, payload.Content, payload.TaskID, replyTo)
	return nil
}

// HandleCommand 处理结构化指令，重复的 id 直接忽略
// 载荷非法但能取出 id 时确认并以 FAIL 终态结束，避免任务悬挂
func (r *CommandRouter) HandleCommand(ctx context.Context, env *modelComm.Envelope) error {
	var payload modelComm.CommandPayload
	decodeErr := modelComm.Decode(env.Data, &payload)
	if decodeErr != nil {
		if payload.ID = commandID(env.Data); payload.ID == "" {
			return decodeErr
		}
	}

	if payload.ID != "" {
		if r.seen.CheckAndMark(payload.ID) {
			logger.LogSystemEvent("CommandRouter", "Command", "Duplicate command ignored", logger.DebugLevel, map[string]interface{}{
				"id": payload.ID,
			})
			return nil
		}
		if err := r.sender.Send(modelComm.EventCommandAck, modelComm.CommandAck{ID: payload.ID}); err != nil {
			logger.LogSystemEvent("CommandRouter", "Command", "Failed to acknowledge command: "+err.Error(), logger.WarnLevel, map[string]interface{}{
				"id": payload.ID,
			})
		}
	}

	if decodeErr != nil {
		logger.LogSystemEvent("CommandRouter", "Command", "Malformed command: "+decodeErr.Error(), logger.WarnLevel, map[string]interface{}{
			"id": payload.ID,
		})
		instr := model.Instruction{Kind: model.InstructionMalformed, TaskID: payload.ID, ReplyTo: r.opts.ReplyTarget}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.executor.Fail(ctx, instr, decodeErr)
		}()
		return nil
	}

	r.Route(ctx, payload.Cmd, payload.ID, r.opts.ReplyTarget)
	return nil
}

// commandID 宽松解析 id，非字符串视为缺失
func commandID(raw json.RawMessage) string {
	var lenient struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal(raw, &lenient); err != nil {
		return ""
	}
	id, _ := lenient.ID.(string)
	return id
}

// HandleDirectMessage 处理私信，非受信任发送方只记录
func (r *CommandRouter) HandleDirectMessage(ctx context.Context, env *modelComm.Envelope) error {
	var payload modelComm.DirectMessagePayload
	if err := modelComm.Decode(env.Data, &payload); err != nil {
		return err
	}

	sender := payload.Sender()
	if _, ok := r.trusted[sender]; !ok {
		logger.LogSystemEvent("CommandRouter", "DirectMessage", payload.Msg, logger.InfoLevel, map[string]interface{}{
			"from":    sender,
			"trusted": false,
		})
		return nil
	}

	r.Route(ctx, payload.Msg, "", sender)
	return nil
}

// Route 分类并异步执行一条指令
func (r *CommandRouter) Route(ctx context.Context, text, taskID, replyTo string) {
	instr, err := Classify(text)
	instr.TaskID = taskID
	instr.ReplyTo = replyTo

	var verr *modelComm.ValidationError
	if err != nil && !errors.As(err, &verr) {
		logger.LogSystemEvent("CommandRouter", "Route", "Unroutable instruction: "+err.Error(), logger.WarnLevel, nil)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if verr != nil {
			r.executor.Reject(ctx, instr, verr)
			return
		}
		r.executor.Execute(ctx, instr)
	}()
}

// Wait 等待所有进行中的指令结束，ctx 到期则提前返回
func (r *CommandRouter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

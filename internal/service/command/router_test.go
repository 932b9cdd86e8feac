package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/dedupe"
	"clownetagent/internal/service/client"
	"clownetagent/internal/service/task"
)

// ==================== 测试替身 ====================

type recordingSender struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSender) Send(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSender) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

// fakeExecutor 记录收到的指令，block 非空时阻塞直到关闭
type fakeExecutor struct {
	mu       sync.Mutex
	executed []model.Instruction
	rejected []model.Instruction
	failed   []model.Instruction
	started  chan struct{}
	block    chan struct{}
}

func (e *fakeExecutor) Execute(ctx context.Context, instr model.Instruction) *model.TaskResult {
	e.mu.Lock()
	e.executed = append(e.executed, instr)
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	return &model.TaskResult{Status: model.TaskStatusSuccess}
}

func (e *fakeExecutor) Reject(ctx context.Context, instr model.Instruction, verr *modelComm.ValidationError) *model.TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected = append(e.rejected, instr)
	return &model.TaskResult{Status: model.TaskStatusSuccess, HumanReply: verr.Error()}
}

func (e *fakeExecutor) Fail(ctx context.Context, instr model.Instruction, cause error) *model.TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, instr)
	return &model.TaskResult{Status: model.TaskStatusFail, ExitCode: -1, HumanReply: cause.Error()}
}

func (e *fakeExecutor) Tracker() *task.Tracker { return task.NewTracker(0) }

func (e *fakeExecutor) snapshot() ([]model.Instruction, []model.Instruction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Instruction(nil), e.executed...), append([]model.Instruction(nil), e.rejected...)
}

func (e *fakeExecutor) failures() []model.Instruction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Instruction(nil), e.failed...)
}

func newTestRouter(exec task.TaskExecutor, sender task.Sender) *CommandRouter {
	identity := model.NewAgentIdentity("node-test-1234", "test-host", model.RoleWorker)
	return NewCommandRouter(
		RouterOptions{TrustedSenders: []string{"master-ui"}, ReplyTarget: "master-ui"},
		identity,
		sender,
		exec,
		dedupe.New(time.Hour, 200),
	)
}

func envelope(t *testing.T, event string, payload interface{}) *modelComm.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &modelComm.Envelope{Event: event, Data: data}
}

func waitRouter(t *testing.T, r *CommandRouter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

// ==================== 测试 ====================

func TestCommandRouter_Register(t *testing.T) {
	d := client.NewDispatcher()
	newTestRouter(&fakeExecutor{}, &recordingSender{}).Register(d)

	assert.ElementsMatch(t, []string{
		modelComm.EventStateSync,
		modelComm.EventMessage,
		modelComm.EventCommand,
		modelComm.EventDirectMessage,
	}, d.Events())
}

func TestCommandRouter_HandleMessage(t *testing.T) {
	tests := []struct {
		name        string
		payload     modelComm.MessagePayload
		wantExecute *model.Instruction
	}{
		{
			name:    "peer chat is not executed",
			payload: modelComm.MessagePayload{Content: "hello everyone", SenderID: "bob"},
		},
		{
			name:    "own echo is ignored",
			payload: modelComm.MessagePayload{Content: "/exec uptime", SenderID: "node-test-1234"},
		},
		{
			name:    "sigil is executed with sender as reply target",
			payload: modelComm.MessagePayload{Content: "/exec uptime", SenderID: "bob", TaskID: "t-1"},
			wantExecute: &model.Instruction{
				Kind: model.InstructionShellExec, Raw: "uptime", TaskID: "t-1", ReplyTo: "bob",
			},
		},
		{
			name:    "command type goes to brain",
			payload: modelComm.MessagePayload{Content: "check disk", Type: modelComm.MessageTypeCommand},
			wantExecute: &model.Instruction{
				Kind: model.InstructionBrainDelegate, Text: "check disk", ReplyTo: "master-ui",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			r := newTestRouter(exec, &recordingSender{})

			require.NoError(t, r.HandleMessage(context.Background(), envelope(t, modelComm.EventMessage, tt.payload)))
			waitRouter(t, r)

			executed, _ := exec.snapshot()
			if tt.wantExecute == nil {
				assert.Empty(t, executed)
				return
			}
			require.Len(t, executed, 1)
			assert.Equal(t, *tt.wantExecute, executed[0])
		})
	}
}

func TestCommandRouter_HandleMessage_InvalidPayload(t *testing.T) {
	r := newTestRouter(&fakeExecutor{}, &recordingSender{})
	err := r.HandleMessage(context.Background(), envelope(t, modelComm.EventMessage, map[string]string{"senderId": "bob"}))
	assert.ErrorIs(t, err, modelComm.ErrInvalidPayload)
}

func TestCommandRouter_HandleCommand_DedupesAndAcks(t *testing.T) {
	exec := &fakeExecutor{}
	sender := &recordingSender{}
	r := newTestRouter(exec, sender)

	env := envelope(t, modelComm.EventCommand, modelComm.CommandPayload{Cmd: "/join #ops", ID: "cmd-1"})
	require.NoError(t, r.HandleCommand(context.Background(), env))
	require.NoError(t, r.HandleCommand(context.Background(), env))
	waitRouter(t, r)

	executed, _ := exec.snapshot()
	require.Len(t, executed, 1)
	assert.Equal(t, model.Instruction{Kind: model.InstructionJoinRoom, Room: "#ops", TaskID: "cmd-1", ReplyTo: "master-ui"}, executed[0])
	assert.Equal(t, 1, sender.count(modelComm.EventCommandAck))
}

func TestCommandRouter_HandleCommand_WithoutID(t *testing.T) {
	exec := &fakeExecutor{}
	sender := &recordingSender{}
	r := newTestRouter(exec, sender)

	env := envelope(t, modelComm.EventCommand, modelComm.CommandPayload{Cmd: "uptime?"})
	require.NoError(t, r.HandleCommand(context.Background(), env))
	require.NoError(t, r.HandleCommand(context.Background(), env))
	waitRouter(t, r)

	executed, _ := exec.snapshot()
	assert.Len(t, executed, 2)
	assert.Zero(t, sender.count(modelComm.EventCommandAck))
}

func TestCommandRouter_HandleCommand_ValidationIsRejected(t *testing.T) {
	exec := &fakeExecutor{}
	r := newTestRouter(exec, &recordingSender{})

	env := envelope(t, modelComm.EventCommand, modelComm.CommandPayload{Cmd: "/relay bob", ID: "cmd-2"})
	require.NoError(t, r.HandleCommand(context.Background(), env))
	waitRouter(t, r)

	executed, rejected := exec.snapshot()
	assert.Empty(t, executed)
	require.Len(t, rejected, 1)
	assert.Equal(t, model.InstructionRelayMessage, rejected[0].Kind)
	assert.Equal(t, "cmd-2", rejected[0].TaskID)
}

func TestCommandRouter_HandleCommand_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantFail string
	}{
		{name: "empty cmd", data: `{"id":"t1","cmd":""}`, wantFail: "t1"},
		{name: "non-string cmd", data: `{"id":"t2","cmd":123}`, wantFail: "t2"},
		{name: "missing cmd", data: `{"id":"t3"}`, wantFail: "t3"},
		{name: "no id", data: `{"cmd":""}`, wantErr: true},
		{name: "non-string id", data: `{"id":7,"cmd":123}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			sender := &recordingSender{}
			r := newTestRouter(exec, sender)

			env := &modelComm.Envelope{Event: modelComm.EventCommand, Data: json.RawMessage(tt.data)}
			err := r.HandleCommand(context.Background(), env)
			waitRouter(t, r)

			executed, rejected := exec.snapshot()
			assert.Empty(t, executed)
			assert.Empty(t, rejected)

			if tt.wantErr {
				assert.ErrorIs(t, err, modelComm.ErrInvalidPayload)
				assert.Empty(t, exec.failures())
				assert.Zero(t, sender.count(modelComm.EventCommandAck))
				return
			}

			require.NoError(t, err)
			failed := exec.failures()
			require.Len(t, failed, 1)
			assert.Equal(t, model.Instruction{Kind: model.InstructionMalformed, TaskID: tt.wantFail, ReplyTo: "master-ui"}, failed[0])
			assert.Equal(t, 1, sender.count(modelComm.EventCommandAck))

			// 重复投递同一 id 不再产生终态
			require.NoError(t, r.HandleCommand(context.Background(), env))
			waitRouter(t, r)
			assert.Len(t, exec.failures(), 1)
		})
	}
}

func TestCommandRouter_HandleDirectMessage(t *testing.T) {
	exec := &fakeExecutor{}
	r := newTestRouter(exec, &recordingSender{})

	require.NoError(t, r.HandleDirectMessage(context.Background(),
		envelope(t, modelComm.EventDirectMessage, modelComm.DirectMessagePayload{From: "mallory", Msg: "/exec rm -rf /"})))
	require.NoError(t, r.HandleDirectMessage(context.Background(),
		envelope(t, modelComm.EventDirectMessage, modelComm.DirectMessagePayload{Msg: "/exec id"})))
	require.NoError(t, r.HandleDirectMessage(context.Background(),
		envelope(t, modelComm.EventDirectMessage, modelComm.DirectMessagePayload{From: "master-ui", Msg: "/exec id"})))
	waitRouter(t, r)

	executed, _ := exec.snapshot()
	require.Len(t, executed, 1)
	assert.Equal(t, "master-ui", executed[0].ReplyTo)
	assert.Equal(t, "id", executed[0].Raw)
	assert.False(t, executed[0].HasTask())
}

func TestCommandRouter_ExecutesInParallel(t *testing.T) {
	exec := &fakeExecutor{started: make(chan struct{}, 2), block: make(chan struct{})}
	r := newTestRouter(exec, &recordingSender{})

	r.Route(context.Background(), "/exec sleep 100", "a", "master-ui")
	r.Route(context.Background(), "/exec sleep 100", "b", "master-ui")

	for i := 0; i < 2; i++ {
		select {
		case <-exec.started:
		case <-time.After(2 * time.Second):
			t.Fatal("instructions were not started concurrently")
		}
	}

	close(exec.block)
	waitRouter(t, r)
}

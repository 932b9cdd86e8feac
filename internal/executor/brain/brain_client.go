/**
 * Brain CLI 客户端
 * @author: sun977
 * @date: 2025.10.21
 * @description: 把自然语言指令委派给本地 Brain CLI，并查询其活跃会话
 * @func: 委派固定使用隔离会话，避免污染人工交互会话
 */
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clownetagent/internal/executor/system"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
)

const (
	// PlaceholderNoText payloads[0] 没有文本时的回复
	PlaceholderNoText = "No text response."
	// PlaceholderThinking 输出中没有可识别字段时的回复
	PlaceholderThinking = "Thinking..."
)

// Options Brain CLI 调用参数
type Options struct {
	Bin             string
	SessionID       string
	AgentCommand    string
	SessionsCommand string
	Timeout         time.Duration // 委派超时
	StatusTimeout   time.Duration // 会话查询超时
}

// Reply 委派结果
type Reply struct {
	Text   string
	Result *system.ProcessResult
}

// Client Brain CLI 客户端接口
type Client interface {
	// Delegate 委派一条消息，非零退出返回 ExecutionError，超时返回 ErrTimeout
	Delegate(ctx context.Context, message string) (*Reply, error)
	// ListActiveSessions 查询活跃会话
	ListActiveSessions(ctx context.Context) ([]modelComm.BrainSession, error)
	// Path 可执行文件路径
	Path() string
}

// cliClient 通过子进程调用 Brain CLI
type cliClient struct {
	opts   Options
	runner system.ProcessRunner
}

// NewClient 创建 Brain CLI 客户端
func NewClient(opts Options, runner system.ProcessRunner) Client {
	if opts.Bin == "" {
		opts.Bin = "openclaw"
	}
	if opts.SessionID == "" {
		opts.SessionID = "clownet-relay"
	}
	if opts.AgentCommand == "" {
		opts.AgentCommand = "agent"
	}
	if opts.SessionsCommand == "" {
		opts.SessionsCommand = "sessions"
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 10 * time.Second
	}
	return &cliClient{opts: opts, runner: runner}
}

// Path 可执行文件路径
func (c *cliClient) Path() string {
	return c.opts.Bin
}

// Delegate 委派消息给 Brain
func (c *cliClient) Delegate(ctx context.Context, message string) (*Reply, error) {
	spec := system.ProcessSpec{
		Name: c.opts.Bin,
		Args: []string{
			c.opts.AgentCommand,
			"--session-id", c.opts.SessionID,
			"--message", message,
			"--local",
			"--json",
		},
		Timeout: c.opts.Timeout,
	}

	res, err := c.runner.Run(ctx, spec)
	if err != nil {
		return &Reply{Result: res}, err
	}
	if res.ExitCode != 0 {
		return &Reply{Result: res}, &modelComm.ExecutionError{
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(res.Stderr),
		}
	}

	return &Reply{Text: ParseReply(res.Stdout), Result: res}, nil
}

// ListActiveSessions 查询活跃会话，输出可以是数组，也可以是带 sessions 字段的对象
func (c *cliClient) ListActiveSessions(ctx context.Context) ([]modelComm.BrainSession, error) {
	spec := system.ProcessSpec{
		Name:    c.opts.Bin,
		Args:    []string{c.opts.SessionsCommand, "--json"},
		Timeout: c.opts.StatusTimeout,
	}

	res, err := c.runner.Run(ctx, spec)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &modelComm.ExecutionError{ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	sessions, err := parseSessions([]byte(res.Stdout))
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"path": "brain.cliClient.ListActiveSessions",
			"bin":  c.opts.Bin,
		}).Debugf("unparseable sessions output: %v", err)
		return nil, err
	}
	return sessions, nil
}

// ==================== 输出解析 ====================

type brainOutput struct {
	Payloads []struct {
		Text string `json:"text"`
	} `json:"payloads"`
	Result json.RawMessage `json:"result"`
}

// ParseReply 从 Brain 的 JSON 输出中提取回复文本
// 优先级: payloads[0].text > result > 占位文本；不是 JSON 时原样返回去空白后的输出
func ParseReply(stdout string) string {
	trimmed := strings.TrimSpace(stdout)

	var probe interface{}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return trimmed
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return PlaceholderThinking
	}

	var out brainOutput
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		// payloads 类型不符
		return PlaceholderThinking
	}

	if len(out.Payloads) > 0 {
		if out.Payloads[0].Text != "" {
			return out.Payloads[0].Text
		}
		return PlaceholderNoText
	}

	if text, ok := resultText(out.Result); ok {
		return text
	}
	return PlaceholderThinking
}

// resultText result 字段为空值 (null/false/0/"") 时视为不存在
func resultText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "0":
		return "", false
	}
	return string(raw), true
}

func parseSessions(data []byte) ([]modelComm.BrainSession, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []modelComm.BrainSession{}, nil
	}

	var list []modelComm.BrainSession
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Sessions []modelComm.BrainSession `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", modelComm.ErrInvalidPayload, err)
	}
	if wrapped.Sessions == nil {
		return []modelComm.BrainSession{}, nil
	}
	return wrapped.Sessions, nil
}

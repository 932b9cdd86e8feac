/**
 * 系统命令执行器
 * @author: sun977
 * @date: 2025.10.21
 * @description: 子进程执行的唯一边界，负责超时、进程组终止与输出捕获
 * @func: 上层只拿到结构化的 ProcessResult，不直接接触 os/exec
 */
package system

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"time"

	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/pkg/logger"
)

// ProcessSpec 一次子进程调用
type ProcessSpec struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string      // 为空时继承当前进程环境
	Timeout time.Duration // <=0 表示只受 ctx 约束
}

// ProcessResult 子进程执行结果
type ProcessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success 进程是否正常退出且退出码为0
func (r *ProcessResult) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// ProcessRunner 子进程执行接口
//   - 超时: 返回 TimedOut=true 的结果与 ErrTimeout，丢弃部分输出
//   - 非零退出: 返回带退出码的结果，err 为 nil
//   - 启动失败: 返回 ExecutionError
type ProcessRunner interface {
	Run(ctx context.Context, spec ProcessSpec) (*ProcessResult, error)
}

// processRunner 基于 os/exec 的实现
type processRunner struct {
	waitDelay time.Duration
}

// NewProcessRunner 创建子进程执行器
func NewProcessRunner() ProcessRunner {
	return &processRunner{waitDelay: 2 * time.Second}
}

// Run 执行子进程并等待结束
func (r *processRunner) Run(ctx context.Context, spec ProcessSpec) (*ProcessResult, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	// 超时后整个进程组一起终止，孙进程持有管道时最多再等 waitDelay
	configureProcessGroup(cmd)
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		pid := 0
		if cmd.Process != nil {
			pid = cmd.Process.Pid
		}
		logger.WithFields(map[string]interface{}{
			"path":     "system.processRunner.Run",
			"name":     spec.Name,
			"pid":      pid,
			"duration": duration.String(),
			"reason":   ctx.Err().Error(),
		}).Warn("child process terminated")
		return &ProcessResult{ExitCode: -1, TimedOut: true, Duration: duration}, modelComm.ErrTimeout
	}

	result := &ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, &modelComm.ExecutionError{ExitCode: -1, Stderr: result.Stderr, Err: err}
	}

	return result, nil
}

// ==================== Shell ====================

// ShellSpec 通过平台 shell 执行一条原始命令
// shell 为空时 Unix 用 sh -c，Windows 用 cmd /C
func ShellSpec(shell, command string, timeout time.Duration) ProcessSpec {
	if shell == "" {
		shell = DefaultShell()
	}
	flag := "-c"
	if isCmdShell(shell) {
		flag = "/C"
	}
	return ProcessSpec{
		Name:    shell,
		Args:    []string{flag, command},
		Timeout: timeout,
	}
}

// DefaultShell 当前平台默认 shell
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

func isCmdShell(shell string) bool {
	switch shell {
	case "cmd", "cmd.exe":
		return true
	}
	return false
}

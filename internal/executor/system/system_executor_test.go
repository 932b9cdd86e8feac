//go:build !windows

package system

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelComm "clownetagent/internal/model/client"
)

func TestProcessRunner_Run(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"stdout", "echo hi", 0, "hi\n", ""},
		{"stderr and exit code", "echo boom >&2; exit 7", 7, "", "boom\n"},
		{"both streams", "echo out; echo err >&2", 0, "out\n", "err\n"},
	}

	runner := NewProcessRunner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := runner.Run(context.Background(), ShellSpec("sh", tt.command, 5*time.Second))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantStdout, res.Stdout)
			assert.Equal(t, tt.wantStderr, res.Stderr)
			assert.False(t, res.TimedOut)
			assert.Equal(t, tt.wantCode == 0, res.Success())
		})
	}
}

func TestProcessRunner_SpawnFailure(t *testing.T) {
	runner := NewProcessRunner()
	res, err := runner.Run(context.Background(), ProcessSpec{Name: "/nonexistent/clownet-binary"})

	var execErr *modelComm.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, -1, execErr.ExitCode)
	assert.Equal(t, -1, res.ExitCode)
}

func TestProcessRunner_TimeoutKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	// 后台子进程写入 pid 后，shell 一直等待
	command := "echo partial; sleep 30 & echo $! > " + pidFile + "; wait"

	runner := NewProcessRunner()
	start := time.Now()
	res, err := runner.Run(context.Background(), ShellSpec("sh", command, 300*time.Millisecond))

	require.ErrorIs(t, err, modelComm.ErrTimeout)
	assert.True(t, res.TimedOut)
	assert.Empty(t, res.Stdout, "partial output is discarded on timeout")
	assert.Less(t, time.Since(start), 5*time.Second)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return processGone(pid)
	}, 3*time.Second, 20*time.Millisecond, "background child %d should be gone", pid)
}

func TestShellSpec(t *testing.T) {
	spec := ShellSpec("", "uptime", time.Second)
	assert.Equal(t, DefaultShell(), spec.Name)
	assert.Equal(t, []string{"-c", "uptime"}, spec.Args)

	spec = ShellSpec("cmd.exe", "dir", time.Second)
	assert.Equal(t, []string{"/C", "dir"}, spec.Args)
}

// processGone 进程不存在或已是僵尸进程（等待 init 回收）
func processGone(pid int) bool {
	if syscall.Kill(pid, 0) == syscall.ESRCH {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

//go:build windows

package system

import "os/exec"

// configureProcessGroup Windows 下只终止直接子进程
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the interpreter in its own process group and
// kills the whole group on cancellation, so threads or children spawned by
// candidate code die with it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// killProcessGroup kills whatever the candidate left running in the
// interpreter's group after the interpreter itself has exited.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

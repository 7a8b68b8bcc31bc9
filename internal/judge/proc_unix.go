//go:build unix

package judge

import (
	"os/exec"
	"syscall"
)

// isolate puts the interpreter in its own process group so a timeout
// takes down anything the submission spawned along with it.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// reap kills whatever is left of the group once the interpreter is gone.
func reap(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

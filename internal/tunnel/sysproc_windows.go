//go:build windows

package tunnel

import (
	"os/exec"
	"syscall"
)

// CREATE_NO_WINDOW: the child gets no console window of its own.
const createNoWindow = 0x08000000

func hideConsoleWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

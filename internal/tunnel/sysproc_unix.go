//go:build !windows

package tunnel

import "os/exec"

// hideConsoleWindow is a no-op outside Windows; background processes have
// no console to hide.
func hideConsoleWindow(cmd *exec.Cmd) {}

//go:build !windows

package updater

import (
	"os/exec"
	"syscall"
)

// startDetached runs the helper in its own session so it outlives the launcher.
func startDetached(script string) error {
	cmd := exec.Command("/bin/sh", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

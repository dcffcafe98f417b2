//go:build windows

package updater

import (
	"os/exec"
)

// startDetached opens the helper in a minimized console of its own.
func startDetached(script string) error {
	cmd := exec.Command("cmd", "/C", "start", "", "/MIN", script)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

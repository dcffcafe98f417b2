//go:build windows

package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// taskkill exits with 128 when the target does not exist.
const taskkillNotFound = 128

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// killGroup force-kills the process tree rooted at pid.
func killGroup(pid int) error {
	return taskkill("/F", "/T", "/PID", strconv.Itoa(pid))
}

func killProcess(pid int) error {
	return taskkill("/F", "/PID", strconv.Itoa(pid))
}

func taskkill(args ...string) error {
	cmd := exec.Command("taskkill", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	err := cmd.Run()

	var exitErr *exec.ExitError
	if err == nil || (errors.As(err, &exitErr) && exitErr.ExitCode() == taskkillNotFound) {
		return nil
	}
	return fmt.Errorf("taskkill %v: %w", args, err)
}

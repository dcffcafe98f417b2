package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Layout is the on-disk arrangement of an llbot installation.
type Layout struct {
	Root string

	PMHQDir     string
	PMHQExe     string
	PMHQConfig  string
	PMHQPackage string

	LLBotDir     string
	NodeName     string
	NodeExe      string
	LLBotScript  string
	LLBotPackage string

	QRCodeImage string
}

// NewLayout resolves every component path under root for the running OS.
func NewLayout(root string) Layout {
	return NewLayoutFor(root, runtime.GOOS)
}

// NewLayoutFor is NewLayout for an explicit GOOS.
func NewLayoutFor(root, goos string) Layout {
	pmhqDir := filepath.Join(root, "bin", "pmhq")
	llbotDir := filepath.Join(root, "bin", "llbot")
	node := ExeName("node", goos)

	return Layout{
		Root:         root,
		PMHQDir:      pmhqDir,
		PMHQExe:      filepath.Join(pmhqDir, ExeName("pmhq", goos)),
		PMHQConfig:   filepath.Join(pmhqDir, "pmhq_config.json"),
		PMHQPackage:  filepath.Join(pmhqDir, "package.json"),
		LLBotDir:     llbotDir,
		NodeName:     node,
		NodeExe:      filepath.Join(llbotDir, node),
		LLBotScript:  filepath.Join(llbotDir, "llbot.js"),
		LLBotPackage: filepath.Join(llbotDir, "package.json"),
		QRCodeImage:  filepath.Join(root, "qrcode.png"),
	}
}

// ExeName appends .exe on windows.
func ExeName(base, goos string) string {
	if goos == "windows" {
		return base + ".exe"
	}
	return base
}

// Executable returns the absolute path of the running binary with
// symlinks resolved, or "" when it cannot be determined.
func Executable() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe
}

// ExecutableDir returns the directory of the running binary, falling back
// to the current directory.
func ExecutableDir() string {
	if exe := Executable(); exe != "" {
		return filepath.Dir(exe)
	}
	return "."
}

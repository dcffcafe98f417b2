package paths

import (
	"path/filepath"
	"testing"
)

func TestNewLayoutFor(t *testing.T) {
	root := filepath.Join("opt", "llbot")

	linux := NewLayoutFor(root, "linux")
	if got, want := linux.PMHQExe, filepath.Join(root, "bin", "pmhq", "pmhq"); got != want {
		t.Errorf("PMHQExe = %q, want %q", got, want)
	}
	if got, want := linux.NodeExe, filepath.Join(root, "bin", "llbot", "node"); got != want {
		t.Errorf("NodeExe = %q, want %q", got, want)
	}
	if got, want := linux.QRCodeImage, filepath.Join(root, "qrcode.png"); got != want {
		t.Errorf("QRCodeImage = %q, want %q", got, want)
	}

	windows := NewLayoutFor(root, "windows")
	if windows.NodeName != "node.exe" {
		t.Errorf("NodeName = %q", windows.NodeName)
	}
	if got, want := windows.PMHQExe, filepath.Join(root, "bin", "pmhq", "pmhq.exe"); got != want {
		t.Errorf("PMHQExe = %q, want %q", got, want)
	}
}

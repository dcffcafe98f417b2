package qrcode

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/llonebot/llbot-cli/internal/domain"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeImage(t *testing.T) {
	raw := []byte("\x89PNG fake")
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{enc, "data:image/png;base64," + enc} {
		got, err := DecodeImage(in)
		if err != nil {
			t.Fatalf("DecodeImage(%q): %v", in, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("DecodeImage(%q) = %q", in, got)
		}
	}

	if _, err := DecodeImage("!!not base64!!"); err == nil {
		t.Fatal("DecodeImage accepted garbage")
	}
}

func TestViewerURL(t *testing.T) {
	got := ViewerURL("https://txz.qq.com/p?k=a&f=1")
	want := "https://api.2dcode.biz/v1/create-qr-code?data=https%3A%2F%2Ftxz.qq.com%2Fp%3Fk%3Da%26f%3D1"
	if got != want {
		t.Fatalf("ViewerURL = %q", got)
	}
}

func TestPresentSavesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrcode.png")
	raw := []byte("png-bytes")

	var out bytes.Buffer
	p := NewPresenter(&out, false, path, quiet())
	p.Present(domain.QRCode{URL: "https://qr/1", Image: base64.StdEncoding.EncodeToString(raw)})

	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved image: %v", err)
	}
	if !bytes.Equal(saved, raw) {
		t.Fatalf("saved = %q", saved)
	}
	if !bytes.Equal(p.Latest(), raw) {
		t.Fatal("Latest not updated")
	}

	text := out.String()
	if !strings.Contains(text, "QR code file: "+path) {
		t.Fatalf("output missing file line:\n%s", text)
	}
	if !strings.Contains(text, ViewerURL("https://qr/1")) {
		t.Fatalf("output missing link:\n%s", text)
	}
	if strings.Contains(text, clearScreen) {
		t.Fatal("terminal rendering happened while disabled")
	}
}

func TestPresentWithoutImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrcode.png")

	var out bytes.Buffer
	p := NewPresenter(&out, true, path, quiet())
	p.Present(domain.QRCode{URL: "https://qr/2"})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("image written without data: %v", err)
	}
	if p.Latest() != nil {
		t.Fatal("Latest set without image")
	}

	text := out.String()
	if !strings.HasPrefix(text, clearScreen) {
		t.Fatal("terminal QR not rendered")
	}
	if !strings.Contains(text, ViewerURL("https://qr/2")) {
		t.Fatalf("output missing link:\n%s", text)
	}
}

func TestPresentBadImageStillPrintsLink(t *testing.T) {
	var out bytes.Buffer
	p := NewPresenter(&out, false, "", quiet())
	p.Present(domain.QRCode{URL: "https://qr/3", Image: "%%%"})

	text := out.String()
	if !strings.Contains(text, "Failed to save QR code") {
		t.Fatalf("missing failure line:\n%s", text)
	}
	if !strings.Contains(text, ViewerURL("https://qr/3")) {
		t.Fatalf("missing link:\n%s", text)
	}
}

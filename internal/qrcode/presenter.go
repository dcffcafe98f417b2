package qrcode

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/mdp/qrterminal/v3"
)

const viewerBase = "https://api.2dcode.biz/v1/create-qr-code?data="

// clearScreen moves the cursor home after clearing the terminal.
const clearScreen = "\x1b[2J\x1b[H"

// Presenter shows login QR codes to the operator.
type Presenter struct {
	out       io.Writer
	terminal  bool
	imagePath string
	logger    *slog.Logger

	mu     sync.RWMutex
	latest []byte
}

// NewPresenter writes to out, renders codes in the terminal when terminal is
// set, and saves images to imagePath when it is non-empty.
func NewPresenter(out io.Writer, terminal bool, imagePath string, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{out: out, terminal: terminal, imagePath: imagePath, logger: logger}
}

// Present renders qr, saves its image when one was pushed, and always
// prints a viewer link.
func (p *Presenter) Present(qr domain.QRCode) {
	if p.terminal {
		fmt.Fprint(p.out, clearScreen+"\n")
		qrterminal.GenerateHalfBlock(qr.URL, qrterminal.L, p.out)
		fmt.Fprintln(p.out)
	}

	if qr.Image != "" {
		if err := p.save(qr.Image); err != nil {
			p.logger.Error("save qrcode image", "err", err)
			fmt.Fprintf(p.out, "Failed to save QR code: %v\n", err)
		} else if p.imagePath != "" {
			fmt.Fprintf(p.out, "QR code file: %s\n", p.imagePath)
		}
	}

	fmt.Fprintf(p.out, "QR code link: %s\n", ViewerURL(qr.URL))
	fmt.Fprintln(p.out, "Scan with mobile QQ to log in")
	fmt.Fprintln(p.out)
}

func (p *Presenter) save(image string) error {
	data, err := DecodeImage(image)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.latest = data
	p.mu.Unlock()

	if p.imagePath == "" {
		return nil
	}
	if err := os.WriteFile(p.imagePath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p.imagePath, err)
	}
	return nil
}

// Latest returns the most recently pushed PNG, or nil.
func (p *Presenter) Latest() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// DecodeImage decodes base64 image data, dropping any data URL header.
func DecodeImage(image string) ([]byte, error) {
	if i := strings.Index(image, "base64,"); i >= 0 {
		image = image[i+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(image))
	if err != nil {
		return nil, fmt.Errorf("decode qrcode image: %w", err)
	}
	return data, nil
}

// ViewerURL links to a public renderer for the login URL.
func ViewerURL(loginURL string) string {
	return viewerBase + url.QueryEscape(loginURL)
}

package pmhq

import (
	"encoding/json"
	"fmt"

	"github.com/llonebot/llbot-cli/internal/domain"
)

// Kind classifies a push event.
type Kind int

const (
	KindIgnored Kind = iota
	KindQRCode
	KindLoggedIn
)

func (k Kind) String() string {
	switch k {
	case KindQRCode:
		return "qrcode"
	case KindLoggedIn:
		return "logged_in"
	default:
		return "ignored"
	}
}

const (
	typeLoginListener   = "nodeIKernelLoginListener"
	typeSessionListener = "nodeIQQNTWrapperSessionListener"
	typeAccountReady    = "account_ready"

	subQRCodePicture   = "onQRCodeGetPicture"
	subSessionComplete = "onSessionInitComplete"
)

// Event is one classified frame from the worker's event stream.
type Event struct {
	Kind   Kind
	QRCode domain.QRCode
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type listenerData struct {
	SubType string          `json:"sub_type"`
	Data    json.RawMessage `json:"data"`
}

type qrcodeData struct {
	PNG string `json:"pngBase64QrcodeData"`
	URL string `json:"qrcodeUrl"`
}

// ParseEvent classifies the JSON payload of a single event frame. Frames
// that are well formed but uninteresting are KindIgnored.
func ParseEvent(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	switch f.Type {
	case typeAccountReady:
		return Event{Kind: KindLoggedIn}, nil

	case typeSessionListener:
		if sub, ok := listener(f.Data); ok && sub.SubType == subSessionComplete {
			return Event{Kind: KindLoggedIn}, nil
		}

	case typeLoginListener:
		sub, ok := listener(f.Data)
		if !ok || sub.SubType != subQRCodePicture {
			break
		}
		var qr qrcodeData
		if err := json.Unmarshal(sub.Data, &qr); err != nil || qr.URL == "" {
			break
		}
		return Event{Kind: KindQRCode, QRCode: domain.QRCode{URL: qr.URL, Image: qr.PNG}}, nil
	}

	return Event{Kind: KindIgnored}, nil
}

func listener(raw json.RawMessage) (listenerData, bool) {
	var sub listenerData
	if len(raw) == 0 {
		return sub, false
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, false
	}
	return sub, true
}

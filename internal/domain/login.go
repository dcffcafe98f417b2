package domain

// LoginState tracks the worker's account login. It only moves forward.
type LoginState int

const (
	StateAwaitingStream LoginState = iota
	StateQRCodeIssued
	StateLoggedIn
)

func (s LoginState) String() string {
	switch s {
	case StateAwaitingStream:
		return "awaiting_stream"
	case StateQRCodeIssued:
		return "qrcode_issued"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// QRCode is a login credential pushed by the worker. Image is optional
// base64 PNG data, possibly prefixed with a data URL header.
type QRCode struct {
	URL   string
	Image string
}

// SelfInfo identifies the logged-in account.
type SelfInfo struct {
	UIN      string `json:"uin"`
	Nickname string `json:"nickname,omitempty"`
}

// Status is the launcher snapshot exposed by the status server.
type Status struct {
	State     string    `json:"state"`
	Port      int       `json:"port"`
	WorkerPID int       `json:"worker_pid,omitempty"`
	Account   *SelfInfo `json:"account,omitempty"`
}

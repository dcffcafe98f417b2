package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llonebot/llbot-cli/internal/domain"
)

type fakeSource struct {
	status domain.Status
	image  []byte
}

func (f fakeSource) Status() domain.Status { return f.status }
func (f fakeSource) QRCodeImage() []byte   { return f.image }

func newTestServer(token string, source Source) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer("127.0.0.1:0", token, source, logger).Handler()
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	h := newTestServer("", fakeSource{status: domain.Status{
		State:     domain.StateLoggedIn.String(),
		Port:      13001,
		WorkerPID: 42,
		Account:   &domain.SelfInfo{UIN: "10001", Nickname: "alice"},
	}})

	rec := get(h, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing request id")
	}

	var body struct {
		OK   bool          `json:"ok"`
		Data domain.Status `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Data.State != "logged_in" || body.Data.Port != 13001 || body.Data.Account.UIN != "10001" {
		t.Fatalf("body = %+v", body)
	}
}

func TestQRCode(t *testing.T) {
	rec := get(newTestServer("", fakeSource{}), "/qrcode.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty qrcode code = %d", rec.Code)
	}

	rec = get(newTestServer("", fakeSource{image: []byte("png")}), "/qrcode.png", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "png" || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qrcode response = %d %q %q", rec.Code, rec.Body.String(), rec.Header().Get("Content-Type"))
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer("s3cret", fakeSource{})

	tests := []struct {
		path   string
		header map[string]string
		want   int
	}{
		{path: "/ping", want: http.StatusOK},
		{path: "/status", want: http.StatusUnauthorized},
		{path: "/status", header: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusForbidden},
		{path: "/status", header: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		if rec := get(h, tt.path, tt.header); rec.Code != tt.want {
			t.Errorf("GET %s %v = %d, want %d", tt.path, tt.header, rec.Code, tt.want)
		}
	}
}

func TestRequestIDReused(t *testing.T) {
	rec := get(newTestServer("", fakeSource{}), "/ping", map[string]string{requestIDHeader: "abc"})
	if got := rec.Header().Get(requestIDHeader); got != "abc" {
		t.Fatalf("request id = %q", got)
	}
}

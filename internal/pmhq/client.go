package pmhq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/llonebot/llbot-cli/internal/domain"
)

const (
	funcQRCode   = "loginService.getQRCodePicture"
	funcSelfInfo = "getSelfInfo"
)

// Options configures a Client. Zero durations select the defaults below.
type Options struct {
	// APITimeout bounds each control call.
	APITimeout time.Duration

	// StreamTimeout bounds one event stream connection.
	StreamTimeout time.Duration

	Logger *slog.Logger
}

// Client talks to the worker's local HTTP control API.
type Client struct {
	baseURL       string
	streamTimeout time.Duration

	http   *http.Client
	stream *http.Client
	logger *slog.Logger
}

// BaseURL is the control API root for a worker listening on port.
func BaseURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// NewClient creates a control API client for the worker at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.APITimeout <= 0 {
		opts.APITimeout = 5 * time.Second
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 300 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	calls := cleanhttp.DefaultPooledClient()
	calls.Timeout = opts.APITimeout

	// The stream client has no overall timeout; each connection gets its
	// own deadline through the request context.
	stream := cleanhttp.DefaultPooledClient()

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		streamTimeout: opts.StreamTimeout,
		http:          calls,
		stream:        stream,
		logger:        opts.Logger,
	}
}

type callRequest struct {
	Type string   `json:"type"`
	Data callData `json:"data"`
}

type callData struct {
	Func string `json:"func"`
	Args []any  `json:"args"`
}

type callResponse struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Call invokes fn on the worker and returns the raw result value.
func (c *Client) Call(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(callRequest{Type: "call", Data: callData{Func: fn, Args: args}})
	if err != nil {
		return nil, domain.ErrCall{Func: fn, Err: fmt.Errorf("marshal request: %w", err)}
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, domain.ErrCall{Func: fn, Err: err}
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, domain.ErrCall{Func: fn, Err: err}
	}
	return result, nil
}

// RequestQRCode asks the worker to push a fresh login QR code on the event
// stream. Only the transport outcome is reported.
func (c *Client) RequestQRCode(ctx context.Context) error {
	body, err := json.Marshal(callRequest{Type: "call", Data: callData{Func: funcQRCode, Args: []any{}}})
	if err != nil {
		return domain.ErrCall{Func: funcQRCode, Err: err}
	}
	if _, err := c.doRequest(ctx, body); err != nil {
		return domain.ErrCall{Func: funcQRCode, Err: err}
	}
	return nil
}

type selfInfoResult struct {
	UIN      json.RawMessage `json:"uin"`
	NickName string          `json:"nickName"`
	Nickname string          `json:"nickname"`
}

// SelfInfo fetches the logged-in account. An empty UIN is an error.
func (c *Client) SelfInfo(ctx context.Context) (domain.SelfInfo, error) {
	raw, err := c.Call(ctx, funcSelfInfo)
	if err != nil {
		return domain.SelfInfo{}, err
	}

	var res selfInfoResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.SelfInfo{}, domain.ErrCall{Func: funcSelfInfo, Err: fmt.Errorf("decode result: %w", err)}
	}

	info := domain.SelfInfo{UIN: parseUIN(res.UIN), Nickname: res.NickName}
	if info.Nickname == "" {
		info.Nickname = res.Nickname
	}
	if info.UIN == "" {
		return domain.SelfInfo{}, domain.ErrCall{Func: funcSelfInfo, Err: errors.New("account uin missing")}
	}
	return info, nil
}

// parseUIN accepts the uin as a JSON string or an unsigned number.
func parseUIN(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if n, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return ""
}

// decodeResult unwraps the call envelope. The data field is either an
// object or a JSON string holding one.
func decodeResult(body []byte) (json.RawMessage, error) {
	var resp callResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Type != "call" {
		return nil, fmt.Errorf("unexpected response type %q", resp.Type)
	}

	inner := resp.Data
	var encoded string
	if err := json.Unmarshal(inner, &encoded); err == nil {
		inner = json.RawMessage(encoded)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(inner, &payload); err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}

	result, ok := payload["result"]
	if !ok {
		return nil, errors.New("response has no result")
	}

	// The worker reports some failures as a plain string result.
	var text string
	if err := json.Unmarshal(result, &text); err == nil && strings.Contains(text, "Error") {
		return nil, errors.New(text)
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http POST %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("worker API error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, fmt.Errorf("worker API returned %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

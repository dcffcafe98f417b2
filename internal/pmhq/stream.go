package pmhq

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/llonebot/llbot-cli/internal/domain"
)

const maxFrameSize = 4 << 20

// Stream connects to the worker's push-event stream and feeds each
// classified event to handle until handle returns false, the stream ends,
// or ctx is done. A connection that reaches the stream timeout ends cleanly.
func (c *Client) Stream(ctx context.Context, handle func(Event) bool) error {
	connCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return domain.ErrStream{Op: "connect", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(connCtx.Err(), context.DeadlineExceeded):
			// Accepted but silent for the whole window.
			return nil
		}
		return domain.ErrStream{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ErrStream{Op: "connect", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		for _, payload := range decodeFrame(line) {
			ev, err := ParseEvent([]byte(payload))
			if err != nil {
				c.logger.Debug("skipping malformed event", "err", err)
				continue
			}
			if ev.Kind == KindIgnored {
				continue
			}
			if !handle(ev) {
				return nil
			}
		}
	}

	err = scanner.Err()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil, errors.Is(connCtx.Err(), context.DeadlineExceeded):
		return nil
	default:
		return domain.ErrStream{Op: "read", Err: err}
	}
}

// decodeFrame parses a single data line as a complete SSE event and
// returns its payloads.
func decodeFrame(line string) []string {
	events, err := sse.Decode(strings.NewReader(line + "\n\n"))
	if err != nil {
		return nil
	}

	payloads := make([]string, 0, len(events))
	for _, ev := range events {
		if data, ok := ev.Data.(string); ok && data != "" {
			payloads = append(payloads, data)
		}
	}
	return payloads
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxBodySize = 1 << 20

// Client talks to the tutoring backend which fronts the conversation provider.
// It never retries; retrying is up to the user.
type Client struct {
	baseURL string
	opts    clientOptions
	logger  *slog.Logger
}

// Health reports nil when the backend answers its root endpoint with a 2xx.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, c.opts.healthPath, nil)
	if err != nil {
		return err
	}
	return nil
}

// Start asks the backend to create a conversation for subject and grade.
func (c *Client) Start(ctx context.Context, subject string, grade int) (*SessionDescriptor, error) {
	const op = "start session"

	data, err := c.do(ctx, op, http.MethodPost, c.opts.startPath, &startRequest{
		Subject: subject,
		Grade:   grade,
	})
	if err != nil {
		return nil, err
	}

	target := c.url(c.opts.startPath)

	var res startResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, malformed(op, target, fmt.Sprintf("decode body: %v", err))
	}
	if res.ConversationID == "" {
		return nil, malformed(op, target, "conversation_id missing")
	}
	if res.JoinURL == "" {
		return nil, malformed(op, target, "join_url missing")
	}

	status := ParseSessionStatus(res.Status)
	if status == SessionStatusEnded || status == SessionStatusCompleted {
		return nil, malformed(op, target, fmt.Sprintf("session already %s", status))
	}

	return &SessionDescriptor{
		ID:      res.ConversationID,
		JoinURL: res.JoinURL,
		Status:  status,
	}, nil
}

// End asks the backend to end the conversation. Any 2xx is success; a JSON body
// with teaching plan and videos is decoded when present.
func (c *Client) End(ctx context.Context, sessionID string) (*EndResult, error) {
	p := sessionPath(c.opts.endPath, sessionID)

	data, err := c.do(ctx, "end session", http.MethodPost, p, nil)
	if err != nil {
		return nil, err
	}

	var res EndResult
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &res); err != nil {
			c.logger.Debug("ignoring undecodable end body", slog.Any("err", err))
			return &EndResult{}, nil
		}
	}
	return &res, nil
}

// Status reads the current status of a conversation. The provider ends
// conversations on its own once participants leave or the call runs too long.
func (c *Client) Status(ctx context.Context, sessionID string) (SessionStatus, error) {
	const op = "session status"

	p := sessionPath(c.opts.statusPath, sessionID)

	data, err := c.do(ctx, op, http.MethodGet, p, nil)
	if err != nil {
		return "", err
	}

	var res statusResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return "", malformed(op, c.url(p), fmt.Sprintf("decode body: %v", err))
	}
	if strings.TrimSpace(res.Status) == "" {
		return "", malformed(op, c.url(p), "status missing")
	}
	return ParseSessionStatus(res.Status), nil
}

// sessionPath fills the {conversation_id} placeholder of p.
func sessionPath(p, sessionID string) string {
	return strings.ReplaceAll(p, "{conversation_id}", url.PathEscape(sessionID))
}

func (c *Client) url(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.baseURL + p
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (_ []byte, err error) {
	var (
		target    = c.url(path)
		requestID = uuid.NewString()
		started   = time.Now()
		logger    = c.logger.With(
			slog.String("op", op),
			slog.String("request_id", requestID),
		)
	)

	defer func() {
		if c.opts.observer != nil {
			c.opts.observer(op, time.Since(started), err)
		}
	}()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &RequestError{Op: op, URL: target, Kind: ErrorKindTransport, Err: fmt.Errorf("marshal body: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &RequestError{Op: op, URL: target, Kind: ErrorKindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.apiKey != "" {
		req.Header.Set("x-api-key", c.opts.apiKey)
	}

	logger.Debug("backend request", slog.String("method", method), slog.String("url", target))

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, URL: target, Kind: ErrorKindTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &RequestError{Op: op, URL: target, Kind: ErrorKindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := &RequestError{
			Op:         op,
			URL:        target,
			Kind:       ErrorKindStatus,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
		logger.Debug("backend request failed", slog.Int("status", resp.StatusCode), slog.String("message", re.Message))
		return nil, re
	}

	logger.Debug("backend response", slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(started)))

	return data, nil
}

// errorMessage pulls a human readable message from a failure body: "message"
// first, then "detail" which is either a string or a list of validation errors.
func errorMessage(data []byte) string {
	var b errorBody
	if err := json.Unmarshal(data, &b); err != nil {
		return ""
	}
	if b.Message != "" {
		return b.Message
	}

	switch d := b.Detail.(type) {
	case string:
		return d
	case []any:
		if len(d) == 0 {
			return ""
		}
		if item, ok := d[0].(map[string]any); ok {
			if msg, ok := item["msg"].(string); ok {
				return msg
			}
		}
	}
	return ""
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: host is required", baseURL)
	}

	var o clientOptions
	withDefaults()(&o)
	withOptions(opts...)(&o)

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		opts:    o,
		logger:  o.logger.With(slog.String("component", "backend")),
	}, nil
}

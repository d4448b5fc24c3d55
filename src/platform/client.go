package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ErrInvalidSession is returned when the identity service rejects a
// session credential.
var ErrInvalidSession = errors.New("invalid session")

// Config holds settings for the platform API client.
type Config struct {
	BaseURL string        // internal base URL of the stateless API tier
	Timeout time.Duration // per-call ceiling, tightened by context deadlines
}

// Client talks to the stateless API tier: session validation for the auth
// gate, conversation-membership resolution for presence, and the HTTP
// fallback for last-seen persistence.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a platform API client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout: timeout,
		logger:  logger.With().Str("component", "platform-client").Logger(),
	}
}

// ValidateSession resolves a raw session credential to the identity that
// owns it. Bounded by the context deadline; not retried — a rejected client
// re-establishes the socket, which re-triggers validation.
func (c *Client) ValidateSession(ctx context.Context, token string) (string, error) {
	body, _ := json.Marshal(map[string]string{"token": token})

	status, respBody, err := c.do(ctx, fasthttp.MethodPost, "/internal/sessions/validate", body)
	if err != nil {
		return "", fmt.Errorf("session validation: %w", err)
	}
	if status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden {
		return "", ErrInvalidSession
	}
	if status != fasthttp.StatusOK {
		return "", fmt.Errorf("session validation: unexpected status %d", status)
	}

	var out struct {
		DID string `json:"did"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("session validation: %w", err)
	}
	if out.DID == "" {
		return "", ErrInvalidSession
	}
	return out.DID, nil
}

// ConversationsFor returns the conversation ids the identity participates in.
func (c *Client) ConversationsFor(ctx context.Context, did string) ([]string, error) {
	path := "/internal/identities/" + url.PathEscape(did) + "/conversations"

	status, respBody, err := c.do(ctx, fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("membership resolution: %w", err)
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("membership resolution: unexpected status %d", status)
	}

	var out struct {
		ConversationIDs []string `json:"conversationIds"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("membership resolution: %w", err)
	}
	return out.ConversationIDs, nil
}

// Touch records the identity's last-seen timestamp via the API tier. This is
// the fallback LastSeenStore when Redis is not configured or unreachable.
func (c *Client) Touch(ctx context.Context, did string, at time.Time) error {
	path := "/internal/identities/" + url.PathEscape(did) + "/last-seen"
	body, _ := json.Marshal(map[string]string{"lastSeen": at.UTC().Format(time.RFC3339)})

	status, _, err := c.do(ctx, fasthttp.MethodPut, path, body)
	if err != nil {
		return fmt.Errorf("last-seen write: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("last-seen write: unexpected status %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return 0, nil, context.DeadlineExceeded
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, err
	}

	// Response buffers are pooled; copy the body out before release.
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hugh/embedash/pkg/config"
)

const (
	// Metabase session tokens stay valid for two weeks by default; a shorter
	// TTL keeps the cache honest, the 401 retry covers early invalidation.
	sessionTTL = time.Hour

	requestTimeout = 30 * time.Second
)

// APIError is returned for any non-2xx response on a mandatory call.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metabase: %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == code
}

// Client wraps the Metabase REST API with a cached admin session.
type Client struct {
	baseURL         string
	publicURL       string
	adminEmail      string
	adminPassword   string
	embeddingSecret []byte
	embedExpiry     time.Duration

	httpClient *http.Client
	sessions   SessionStore
	logger     *slog.Logger

	// Serializes permission-graph read-modify-write cycles; Metabase offers
	// no compare-and-swap on /api/permissions/graph.
	graphMu sync.Mutex
}

func NewClient(cfg *config.MetabaseConfig, sessions SessionStore, logger *slog.Logger) *Client {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		publicURL:       strings.TrimRight(cfg.PublicURL, "/"),
		adminEmail:      cfg.AdminEmail,
		adminPassword:   cfg.AdminPassword,
		embeddingSecret: []byte(cfg.EmbeddingSecret),
		embedExpiry:     cfg.EmbedExpiry(),
		httpClient:      &http.Client{Timeout: requestTimeout},
		sessions:        sessions,
		logger:          logger,
	}
}

type sessionResponse struct {
	ID string `json:"id"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	body := map[string]string{
		"username": c.adminEmail,
		"password": c.adminPassword,
	}
	var resp sessionResponse
	if err := c.doRaw(ctx, http.MethodPost, "/api/session", body, "", &resp); err != nil {
		return "", fmt.Errorf("acquiring session: %w", err)
	}
	c.sessions.Save(ctx, resp.ID, sessionTTL)
	return resp.ID, nil
}

func (c *Client) ensureSession(ctx context.Context) (string, error) {
	if token, ok := c.sessions.Load(ctx); ok {
		return token, nil
	}
	return c.login(ctx)
}

// do performs an authenticated request. A 401 clears the cached session and
// retries once with a fresh login.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}

	err = c.doRaw(ctx, method, path, body, token, out)
	if IsStatus(err, http.StatusUnauthorized) {
		c.sessions.Clear(ctx)
		token, err = c.login(ctx)
		if err != nil {
			return err
		}
		err = c.doRaw(ctx, method, path, body, token, out)
	}
	return err
}

func (c *Client) doRaw(ctx context.Context, method, path string, body interface{}, token string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Metabase-Session", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

// unwrapList tolerates Metabase returning either a bare JSON array or an
// object with a "data" key, which varies by endpoint and version.
func unwrapList[T any](raw json.RawMessage) ([]T, error) {
	var items []T
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}
	return wrapped.Data, nil
}

// Health reports whether the Metabase instance answers its health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SetupToken returns the first-run setup token, or "" when the instance is
// already configured.
func (c *Client) SetupToken(ctx context.Context) (string, error) {
	var props struct {
		SetupToken string `json:"setup-token"`
	}
	if err := c.doRaw(ctx, http.MethodGet, "/api/session/properties", nil, "", &props); err != nil {
		return "", err
	}
	return props.SetupToken, nil
}

// SetupAdmin provisions the first admin on a fresh instance.
func (c *Client) SetupAdmin(ctx context.Context, setupToken string) error {
	payload := map[string]interface{}{
		"token": setupToken,
		"user": map[string]string{
			"first_name": "Admin",
			"last_name":  "User",
			"email":      c.adminEmail,
			"password":   c.adminPassword,
		},
		"prefs": map[string]interface{}{
			"site_name":      "Analytics Platform",
			"allow_tracking": false,
		},
	}
	return c.doRaw(ctx, http.MethodPost, "/api/setup", payload, "", nil)
}

// EnableEmbedding switches the instance-wide embedding setting on.
func (c *Client) EnableEmbedding(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/setting/enable-embedding", map[string]bool{"value": true}, nil)
}

// Package pipeline is the public entry point for authenticated upstream
// calls: it attaches the bearer credential, detects authentication failure,
// and replays once after a coordinated token refresh.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/credentials"
	"github.com/Checker-Finance/authgate/internal/transport"
)

// Sender performs one HTTP exchange. Satisfied by *transport.Transport.
type Sender interface {
	Send(ctx context.Context, method, url string, header http.Header, body []byte) (*transport.Response, error)
}

// RefreshRunner yields a fresh access token, coalescing concurrent callers
// into a single upstream refresh. Satisfied by *auth.Coordinator.
type RefreshRunner interface {
	Refresh(ctx context.Context) (string, error)
}

// Client composes the credential store, the transport and the refresh
// coordinator into the one operation the rest of the application uses.
type Client struct {
	logger    *zap.Logger
	baseURL   string
	store     credentials.Store
	transport Sender
	refresh   RefreshRunner
}

// NewClient creates a pipeline client for the given upstream base URL.
func NewClient(logger *zap.Logger, baseURL string, store credentials.Store, sender Sender, refresh RefreshRunner) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:    logger,
		baseURL:   baseURL,
		store:     store,
		transport: sender,
		refresh:   refresh,
	}
}

// Do sends the request with the current access token attached. On the first
// 401 it refreshes (or joins an in-flight refresh) and replays a copy of the
// descriptor once with the new token; every other failure, and a 401 on an
// already-replayed request, propagates unchanged.
func (c *Client) Do(ctx context.Context, req *Request) (*transport.Response, error) {
	access, err := c.store.AccessToken(ctx)
	if err != nil {
		// Absent credential: send unauthenticated, the upstream decides.
		c.logger.Warn("pipeline.access_token_read_failed", zap.Error(err))
		access = ""
	}
	return c.send(ctx, req, access)
}

func (c *Client) send(ctx context.Context, req *Request, access string) (*transport.Response, error) {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if access != "" {
		header.Set("Authorization", "Bearer "+access)
	}
	if header.Get("X-Request-ID") == "" {
		header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := c.transport.Send(ctx, req.Method, c.baseURL+req.Path, header, req.Body)
	if err == nil {
		return resp, nil
	}

	var httpErr *transport.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized || req.Retried() {
		return nil, err
	}

	// First authentication failure: refresh, then replay exactly once.
	newAccess, refreshErr := c.refresh.Refresh(ctx)
	if refreshErr != nil {
		return nil, refreshErr
	}

	c.logger.Debug("pipeline.replay",
		zap.String("method", req.Method),
		zap.String("path", req.Path))

	return c.send(ctx, req.WithRetried(), newAccess)
}

// GetJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, NewRequest(http.MethodGet, path).WithHeader("Accept", "application/json"))
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// PostJSON performs an authenticated POST with a JSON body and decodes the
// JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req := NewRequest(http.MethodPost, path).
		WithHeader("Content-Type", "application/json").
		WithHeader("Accept", "application/json").
		WithBody(data)

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func decodeJSON(resp *transport.Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/credentials"
)

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error)
}

// Refresher talks to the upstream auth endpoints. It uses its own HTTP client
// with a short timeout so a hung refresh call cannot stall the pipeline
// indefinitely.
type Refresher struct {
	logger     *zap.Logger
	client     *http.Client
	loginURL   string
	refreshURL string
}

// NewRefresher creates a Refresher for the given upstream base URL and paths.
func NewRefresher(logger *zap.Logger, baseURL, loginPath, refreshPath string, timeout time.Duration) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Refresher{
		logger:     logger,
		client:     &http.Client{Timeout: timeout},
		loginURL:   baseURL + loginPath,
		refreshURL: baseURL + refreshPath,
	}
}

// Login exchanges username/password for a token pair.
func (r *Refresher) Login(ctx context.Context, username, password string) (credentials.Pair, error) {
	pair, err := r.exchange(ctx, r.loginURL, loginRequest{Username: username, Password: password})
	if err != nil {
		r.logger.Error("auth.login_failed", zap.String("user", username), zap.Error(err))
		return credentials.Pair{}, fmt.Errorf("login: %w", err)
	}
	r.logger.Info("auth.login_success", zap.String("user", username))
	return pair, nil
}

// Refresh exchanges a refresh token for a new token pair. Network errors,
// non-2xx statuses and malformed replies are all uniform refresh failures;
// the caller does not distinguish between them.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error) {
	pair, err := r.exchange(ctx, r.refreshURL, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("refresh: %w", err)
	}
	return pair, nil
}

func (r *Refresher) exchange(ctx context.Context, url string, payload any) (credentials.Pair, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return credentials.Pair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return credentials.Pair{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return credentials.Pair{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return credentials.Pair{}, fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return credentials.Pair{}, fmt.Errorf("decode auth response: %w", err)
	}
	if tr.AccessToken == "" {
		return credentials.Pair{}, fmt.Errorf("auth endpoint returned empty access_token")
	}

	return credentials.Pair{Access: tr.AccessToken, Refresh: tr.RefreshToken}, nil
}

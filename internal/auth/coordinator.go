// Package auth owns the token refresh lifecycle: the single-flight refresh
// coordinator, the upstream refresher, and the explicit login/logout routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/credentials"
	"github.com/Checker-Finance/authgate/internal/metrics"
	"github.com/Checker-Finance/authgate/pkg/utils"
)

// ErrNoRefreshToken is returned when a refresh is required but no refresh
// token is stored. Credentials are cleared and the auth-lost callback fires
// before this is returned.
var ErrNoRefreshToken = errors.New("no refresh token available")

type state int

const (
	stateIdle state = iota
	stateRefreshing
)

// attempt is one in-flight refresh. Every caller that arrives while it runs
// waits on done and shares its outcome.
type attempt struct {
	done   chan struct{}
	access string
	err    error
}

// Coordinator guarantees that any number of concurrent callers needing a
// token refresh result in at most one upstream refresh call. On success the
// new pair is persisted before any waiter is released; on failure credentials
// are cleared and every waiter gets the same refresh error.
type Coordinator struct {
	logger      *zap.Logger
	store       credentials.Store
	refresher   TokenRefresher
	onRefreshed func()
	onAuthLost  func()

	mu      sync.Mutex
	state   state
	current *attempt
}

// NewCoordinator creates a Coordinator. Both callbacks may be nil. onRefreshed
// is called after a refreshed pair has been persisted; onAuthLost whenever
// credentials are cleared because refresh became impossible, so the
// application can route to a login flow.
func NewCoordinator(logger *zap.Logger, store credentials.Store, refresher TokenRefresher, onRefreshed, onAuthLost func()) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger:      logger,
		store:       store,
		refresher:   refresher,
		onRefreshed: onRefreshed,
		onAuthLost:  onAuthLost,
	}
}

// Refresh returns a fresh access token. If a refresh is already in flight the
// caller waits for its outcome instead of starting another one.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state == stateRefreshing {
		att := c.current
		c.mu.Unlock()

		metrics.RefreshWaiters.Inc()
		select {
		case <-att.done:
			return att.access, att.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// Committing to stateRefreshing happens under the same lock as the idle
	// check. A second caller can never observe idle while this refresh runs.
	att := &attempt{done: make(chan struct{})}
	c.state = stateRefreshing
	c.current = att
	c.mu.Unlock()

	// The outcome is shared by every waiter, so the exchange must not die
	// with the triggering request. The refresher's own client timeout still
	// bounds it.
	att.access, att.err = c.doRefresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state = stateIdle
	c.current = nil
	c.mu.Unlock()

	close(att.done)
	return att.access, att.err
}

// doRefresh performs the actual refresh exchange. The new pair is persisted
// before returning so no waiter can replay with a stale credential.
func (c *Coordinator) doRefresh(ctx context.Context) (string, error) {
	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil {
		// Storage failure reads as "credential absent".
		c.logger.Warn("auth.refresh_token_read_failed", zap.Error(err))
		refreshToken = ""
	}

	if refreshToken == "" {
		c.logger.Warn("auth.refresh_impossible", zap.String("reason", "missing_refresh_token"))
		metrics.IncRefresh("no_refresh_token")
		c.loseAuth(ctx)
		return "", ErrNoRefreshToken
	}

	pair, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		c.logger.Error("auth.refresh_failed", zap.Error(err))
		metrics.IncRefresh("failed")
		c.loseAuth(ctx)
		return "", fmt.Errorf("token refresh: %w", err)
	}

	if err := c.store.SetPair(ctx, pair); err != nil {
		// A token we cannot persist is a token we cannot trust to be there
		// on the next request. Fail closed.
		c.logger.Error("auth.refresh_persist_failed", zap.Error(err))
		metrics.IncRefresh("failed")
		c.loseAuth(ctx)
		return "", fmt.Errorf("persist refreshed credentials: %w", err)
	}

	c.logger.Info("auth.refresh_success",
		zap.String("access_token", utils.MaskToken(pair.Access)))
	metrics.IncRefresh("ok")
	if c.onRefreshed != nil {
		c.onRefreshed()
	}
	return pair.Access, nil
}

// loseAuth clears credentials and notifies the application.
func (c *Coordinator) loseAuth(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("auth.clear_failed", zap.Error(err))
	}
	metrics.AuthLostTotal.Inc()
	if c.onAuthLost != nil {
		c.onAuthLost()
	}
}

package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/credentials"
)

// LoginClient exchanges username/password for a token pair.
type LoginClient interface {
	Login(ctx context.Context, username, password string) (credentials.Pair, error)
}

// Service handles the explicit credential lifecycle: login stores a fresh
// pair, logout clears it. Together with the coordinator's refresh these are
// the only mutation routes into the credential store.
type Service struct {
	logger  *zap.Logger
	store   credentials.Store
	login   LoginClient
	onLogin func()
}

// NewService creates a Service. onLogin may be nil; when set it is called
// after a successful login has been persisted.
func NewService(logger *zap.Logger, store credentials.Store, login LoginClient, onLogin func()) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, store: store, login: login, onLogin: onLogin}
}

// Login authenticates against the upstream and stores the resulting pair.
func (s *Service) Login(ctx context.Context, username, password string) error {
	pair, err := s.login.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := s.store.SetPair(ctx, pair); err != nil {
		return fmt.Errorf("persist login credentials: %w", err)
	}
	s.logger.Info("auth.login")
	if s.onLogin != nil {
		s.onLogin()
	}
	return nil
}

// Logout clears stored credentials.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Info("auth.logout")
	return nil
}

// Active reports whether an access token is currently stored.
func (s *Service) Active(ctx context.Context) bool {
	access, err := s.store.AccessToken(ctx)
	return err == nil && access != ""
}

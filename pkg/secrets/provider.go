package secrets

import "context"

// LoginCredentials is the bootstrap username/password used to obtain the first
// token pair from the upstream auth endpoint.
type LoginCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Provider defines a generic secrets manager interface.
// Concrete implementations (AWS, env-based, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}

// Package credentials owns the access/refresh token pair. All mutation routes
// through SetPair (login, refresh success) and Clear (logout, refresh failure),
// each a single atomic write; nothing else touches stored tokens directly.
package credentials

import "context"

// Pair is the access/refresh token pair. It is always replaced wholesale:
// a successful refresh writes a complete new pair, never one half of it.
type Pair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// Empty reports whether the pair carries no credentials at all.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Store is the persistence boundary for the token pair.
// Read errors are treated by callers as "credential absent" rather than fatal.
type Store interface {
	// AccessToken returns the current access token, or "" if none is stored.
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken returns the current refresh token, or "" if none is stored.
	RefreshToken(ctx context.Context) (string, error)

	// SetPair replaces the stored pair wholesale.
	SetPair(ctx context.Context, pair Pair) error

	// Clear removes both tokens.
	Clear(ctx context.Context) error
}

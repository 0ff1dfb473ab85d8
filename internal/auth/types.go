package auth

// loginRequest is the payload for the upstream login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the payload for the upstream refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the reply from both the login and refresh endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

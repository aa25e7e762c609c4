package auth

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Session binds the sha256 hash of an outstanding refresh token to its
// owner. The raw token is never stored; presence of the row is what makes
// a refresh token valid, absence is what makes revocation stick.
type Session struct {
	ID        string
	Username  string
	TokenHash string
	CreatedAt time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

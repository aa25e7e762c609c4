package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience is stamped into every token this service mints and checked on
// every verification. It keeps tokens from unrelated issuers that happen
// to share the signing secret from being accepted here.
const Audience = "auth-service"

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenAudience  = errors.New("token audience mismatch")
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims is the shared claim set for access and refresh tokens: subject is
// the username, UserID carries the store row id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	UserID   string `json:"uid"`
}

// Codec signs and verifies the compact bearer tokens. The secret is
// process-wide, loaded once at startup; rotating it invalidates every
// outstanding token.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

func (c *Codec) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// A unique id per token keeps two tokens minted within the
			// same second from being byte-identical, which would collapse
			// their session hashes into one.
			ID:        uuid.NewString(),
			Subject:   user.Username,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: user.Username,
		UserID:   user.ID,
	})

	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return encoded, nil
}

// Verify parses and validates a token. The returned errors distinguish
// expiry, tampering, audience mismatch, and structural garbage so callers
// can log the reason; every one of them means "reject as unauthenticated".
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, ErrTokenAudience
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

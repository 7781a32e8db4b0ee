package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAuthIDTTL matches the default flow state TTL.
const DefaultAuthIDTTL = 15 * time.Minute

const authIDIssuer = "authtree"

// AuthIDClaims is the payload of an auth id token.
type AuthIDClaims struct {
	Realm string `json:"realm"`
	jwt.RegisteredClaims
}

// AuthIDCodec issues and verifies HS256-signed auth ids that reference a session.
type AuthIDCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewAuthIDCodec creates a codec. The key must be at least 32 bytes.
func NewAuthIDCodec(key []byte, ttl time.Duration) (*AuthIDCodec, error) {
	if len(key) < 32 {
		return nil, errors.New("auth id signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultAuthIDTTL
	}
	return &AuthIDCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Encode signs a token referencing sessionID in realm.
func (c *AuthIDCodec) Encode(sessionID, realm string) (string, error) {
	now := c.now()
	claims := AuthIDClaims{
		Realm: realm,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Issuer:    authIDIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode verifies token and returns the session id. The token must have been issued for realm.
// Every failure wraps domain.ErrInvalidAuthID.
func (c *AuthIDCodec) Decode(token, realm string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(authIDIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &AuthIDClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidAuthID, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", domain.ErrInvalidAuthID
	}
	if claims.Realm != realm {
		return "", fmt.Errorf("%w: issued for realm %q", domain.ErrInvalidAuthID, claims.Realm)
	}
	return claims.Subject, nil
}

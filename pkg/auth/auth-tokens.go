package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretLength = 32

var ErrWeakSecret = fmt.Errorf("token secret must be at least %d bytes long", minSecretLength)

// Claims identify a profile and the session a token belongs to.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) (*Tokens, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token whose subject is the profile id and whose id is the session id.
func (t *Tokens) Issue(profileId, email, sessionId string, expires time.Time) (string, error) {
	var claims = Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileId,
			ID:        sessionId,
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies the signature and the expiry of a token.
func (t *Tokens) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("malformed token claims")
	}
	return claims, nil
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	TokenTypeAccess = "access"

	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ErrSecretNotConfigured = errors.New("JWT secret not configured")

// Identity is what the ledger needs to know about a caller.
type Identity struct {
	UserID string
	Role   string
}

// Verifier validates HMAC-signed JWTs issued by the auth service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func (v *Verifier) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if v == nil || v.secret == nil {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// Identify validates an access token and extracts the caller identity.
func (v *Verifier) Identify(tokenStr string) (Identity, error) {
	claims, err := v.ParseAndValidateToken(tokenStr, TokenTypeAccess)
	if err != nil {
		return Identity{}, err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: sub, Role: role}, nil
}

// Issue signs an access token for id. Used by tooling and tests; the auth
// service owns issuance in production.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if v == nil || v.secret == nil {
		return "", ErrSecretNotConfigured
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": id.Role,
		"typ":  TokenTypeAccess,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

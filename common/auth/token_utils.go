package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	ErrSecretNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

const RoleAdmin = "admin"

// Identity is what the payment API needs to know about the caller.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// ParseAndValidateToken parses an HMAC-signed JWT and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func ParseAndValidateToken(secret []byte, tokenStr, expectedType string) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
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

// IdentityFromClaims reads the user id from "user_id", falling back to "sub".
func IdentityFromClaims(claims jwt.MapClaims) (Identity, error) {
	raw, _ := claims["user_id"].(string)
	if raw == "" {
		raw, _ = claims["sub"].(string)
	}
	if raw == "" {
		return Identity{}, errors.New("token has no subject")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: id, Role: role}, nil
}

// Package jwt handles signed token generation and validation for API and
// realtime clients.
package jwt

import (
	"time"

	jwtstd "github.com/golang-jwt/jwt/v5"
)

// TokenError represents JWT token related errors
type TokenError string

func (e TokenError) Error() string {
	return string(e)
}

const (
	DefaultAccessTokenExpire = time.Hour * 24

	ErrNeedTokenProvider = TokenError("cannot sign token without token provider")
	ErrInvalidToken      = TokenError("invalid token")
)

// TokenManager handles JWT token operations
type TokenManager struct {
	key string
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(key string) *TokenManager {
	return &TokenManager{key: key}
}

func (jtm *TokenManager) validateKey() error {
	if jtm.key == "" {
		return ErrNeedTokenProvider
	}
	return nil
}

// GenerateAccessToken generates an access token carrying the given payload.
func (jtm *TokenManager) GenerateAccessToken(jti string, payload map[string]any, expiry ...time.Duration) (string, error) {
	if err := jtm.validateKey(); err != nil {
		return "", err
	}

	expire := DefaultAccessTokenExpire
	if len(expiry) > 0 && expiry[0] > 0 {
		expire = expiry[0]
	}

	claims := jwtstd.MapClaims{
		"jti":     jti,
		"sub":     "access",
		"payload": payload,
		"exp":     time.Now().Add(expire).Unix(),
	}

	t := jwtstd.NewWithClaims(jwtstd.SigningMethodHS256, claims)
	return t.SignedString([]byte(jtm.key))
}

// DecodeToken decodes a token string and returns its claims.
func (jtm *TokenManager) DecodeToken(tokenString string) (map[string]any, error) {
	if err := jtm.validateKey(); err != nil {
		return nil, err
	}

	token, err := jwtstd.Parse(tokenString, func(token *jwtstd.Token) (any, error) {
		if _, ok := token.Method.(*jwtstd.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(jtm.key), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwtstd.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetPayloadString extracts a string field from the token payload.
func GetPayloadString(claims map[string]any, key string) string {
	payload, ok := claims["payload"].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := payload[key].(string)
	return value
}

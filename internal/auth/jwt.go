package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const widgetTokenTTL = 24 * time.Hour

// WidgetClaims are the claims carried by a widget session token.
type WidgetClaims struct {
	SessionID string `json:"session_id"`
	Origin    string `json:"origin,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates widget session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: widgetTokenTTL}, nil
}

// IssueWidgetToken generates a signed token binding the widget to a
// session ID.
func (t *TokenIssuer) IssueWidgetToken(sessionID, origin string) (string, error) {
	now := time.Now()
	claims := &WidgetClaims{
		SessionID: sessionID,
		Origin:    origin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken validates a widget token and returns its claims.
func (t *TokenIssuer) ValidateToken(tokenString string) (*WidgetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WidgetClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*WidgetClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

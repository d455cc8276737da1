package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EmergencyClaims is the payload of an emergency bypass token. TokenType is
// always "emergency"; a regular access token presented on the emergency path
// fails verification on that field.
type EmergencyClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
	Name      string `json:"name,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

const emergencyTokenType = "emergency"

// MintEmergencyToken signs a short-lived emergency bypass token for the
// given responder. Issuance happens out of band (an operator runs the CLI);
// the server only ever verifies.
func MintEmergencyToken(secret []byte, responderID, name, reason string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("emergency token secret is empty")
	}
	now := time.Now()
	claims := EmergencyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   responderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: emergencyTokenType,
		Name:      name,
		Reason:    reason,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyEmergencyToken validates signature, expiry, and token type. It does
// not consult any actor store; possession of a valid token is the entire
// credential.
func VerifyEmergencyToken(secret []byte, tokenStr string) (*EmergencyClaims, error) {
	claims := &EmergencyClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse emergency token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid emergency token")
	}
	if claims.TokenType != emergencyTokenType {
		return nil, fmt.Errorf("not an emergency token")
	}
	return claims, nil
}

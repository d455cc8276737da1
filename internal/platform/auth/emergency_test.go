package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var emergencySecret = []byte("emergency-secret-for-tests")

func TestMintAndVerifyEmergencyToken(t *testing.T) {
	tokenStr, err := MintEmergencyToken(emergencySecret, "responder-7", "EMS Unit 12", "cardiac arrest, field access", 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := VerifyEmergencyToken(emergencySecret, tokenStr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "responder-7" {
		t.Errorf("expected subject responder-7, got %s", claims.Subject)
	}
	if claims.TokenType != "emergency" {
		t.Errorf("expected type emergency, got %s", claims.TokenType)
	}
	if claims.Name != "EMS Unit 12" {
		t.Errorf("expected name EMS Unit 12, got %s", claims.Name)
	}
}

func TestVerifyEmergencyToken_Expired(t *testing.T) {
	tokenStr, err := MintEmergencyToken(emergencySecret, "responder-7", "", "", -1*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := VerifyEmergencyToken(emergencySecret, tokenStr); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestVerifyEmergencyToken_WrongSecret(t *testing.T) {
	tokenStr, err := MintEmergencyToken(emergencySecret, "responder-7", "", "", 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := VerifyEmergencyToken([]byte("other-secret"), tokenStr); err == nil {
		t.Error("expected wrong-secret token to fail verification")
	}
}

func TestVerifyEmergencyToken_RejectsRegularAccessToken(t *testing.T) {
	// A standard access token signed with the same secret must not pass the
	// emergency gate; it lacks the type field.
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "doctor-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		},
		Role: RoleDoctor,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(emergencySecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = VerifyEmergencyToken(emergencySecret, tokenStr)
	if err == nil {
		t.Fatal("expected access token to fail emergency verification")
	}
	if !strings.Contains(err.Error(), "not an emergency token") {
		t.Errorf("expected type mismatch error, got %v", err)
	}
}

func TestMintEmergencyToken_EmptySecret(t *testing.T) {
	if _, err := MintEmergencyToken(nil, "responder-7", "", "", time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}

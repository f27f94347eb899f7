package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateClientToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateClientToken(secret, "voicecall-test", time.Hour)
	if err != nil {
		t.Fatalf("GenerateClientToken failed: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ClientID != "voicecall-test" {
		t.Errorf("Expected client id voicecall-test, got %s", claims.ClientID)
	}
	if claims.Role != RoleClient {
		t.Errorf("Expected role %s, got %s", RoleClient, claims.Role)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateClientToken([]byte("one"), "client", time.Hour)
	if err != nil {
		t.Fatalf("GenerateClientToken failed: %v", err)
	}

	if _, err := ValidateToken([]byte("two"), token); err == nil {
		t.Error("Expected signature error for a different secret")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	secret := []byte("test-secret")
	claims := &JWTClaims{
		ClientID: "client",
		Role:     RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	_, err = ValidateToken(secret, token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	if _, err := GenerateClientToken(nil, "client", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}
	if _, err := ValidateToken(nil, "token"); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}
}

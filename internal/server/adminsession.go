package server

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/lumenfeed/ingest/internal/common"
)

// adminSessionSigningKey derives the HMAC key used to sign admin session
// tokens from the configured admin secret via HKDF-SHA256, so the raw
// X-Admin-Key value is never used directly as a signing key.
func adminSessionSigningKey(config *common.Config) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(config.Auth.AdminKeySecret), nil, []byte("ingest-admin-session"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive admin session key: %w", err)
	}
	return key, nil
}

// issueAdminSessionToken signs a short-lived JWT an admin tool can present
// instead of resending X-Admin-Key on every call. Purely a convenience: the
// plain X-Admin-Key header always remains valid.
func issueAdminSessionToken(config *common.Config) (string, error) {
	key, err := adminSessionSigningKey(config)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"role": "admin",
		"iss":  "ingest-server",
		"iat":  now.Unix(),
		"exp":  now.Add(config.Auth.GetTokenExpiry()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// validateAdminSessionToken parses and checks an admin session token signed
// by issueAdminSessionToken, returning an error if it is malformed, expired,
// or not an admin-scoped claim.
func validateAdminSessionToken(tokenString string, config *common.Config) error {
	key, err := adminSessionSigningKey(config)
	if err != nil {
		return err
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid or expired admin session token")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("token is not admin-scoped")
	}
	return nil
}

// Package auth provides authentication primitives for the entitlement
// service. Two methods are supported: JWTs (issued to players by the account
// platform, stateless verification) and a service key (long-lived shared
// secret for system callers, stored only as a bcrypt hash in config).
// See internal/middleware/auth.go for the request-time authentication logic
// that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// ServiceKeyLength is the length of the random part of the key in bytes
	ServiceKeyLength = 32

	// ServiceKeyPrefix marks service keys so middleware can route them past
	// JWT parsing without a failed parse attempt
	ServiceKeyPrefix = "fltsvc"

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateServiceKey creates a new random service key.
// Returns: full key (to show once), bcrypt hash (to store in config).
func GenerateServiceKey() (key string, hash string, err error) {
	randomBytes := make([]byte, ServiceKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s", ServiceKeyPrefix, randomPart)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash service key: %w", err)
	}

	return fullKey, string(hashBytes), nil
}

// IsServiceKey reports whether a bearer token is shaped like a service key.
func IsServiceKey(token string) bool {
	return strings.HasPrefix(token, ServiceKeyPrefix+"_")
}

// ValidateServiceKey checks if a provided key matches the stored bcrypt hash.
func ValidateServiceKey(providedKey, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <jwt or service key>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	apiKeyPrefix  = "cs_"
	apiKeyEntropy = 24
)

// GenerateAPIKey produces a random API key. Only its HashAPIKey digest should be persisted.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey returns the hex SHA-256 digest used to look keys up.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

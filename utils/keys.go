package utils

import (
	"crypto/rand"
	"fmt"
)

func GenerateSecureRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)

	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %v", err)
	}

	for i, b := range bytes {
		bytes[i] = charset[b%byte(len(charset))]
	}

	return string(bytes), nil
}

// GenerateAPIKey mints an opaque per-user key. The key is an identifier, not
// a credential the service verifies; callers present user_id directly.
func GenerateAPIKey() (string, error) {
	s, err := GenerateSecureRandomString(40)
	if err != nil {
		return "", err
	}
	return "sk-" + s, nil
}

package auth

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// HashAPIKey returns the argon2id hash stored in ADMIN_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("auth: api key is empty")
	}
	return argon2id.CreateHash(key, argon2id.DefaultParams)
}

// CheckAPIKey reports whether key matches hash.
func CheckAPIKey(key, hash string) (bool, error) {
	if key == "" || hash == "" {
		return false, nil
	}
	return argon2id.ComparePasswordAndHash(key, hash)
}

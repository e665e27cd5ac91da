// Package credential is the single place in the system that derives and
// verifies password hashes. Every caller, including the seeding CLI, goes
// through the same constants so that hashes produced anywhere remain
// mutually verifiable.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/csiflex/identity/internal/common"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 10000
)

// GenerateSalt returns a fresh 32-byte cryptographically random salt,
// Base64-encoded. Salts are never reused across users.
func GenerateSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("salt generation error: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// HashPassword derives a 32-byte PBKDF2-SHA256 key from the password and the
// given Base64-encoded salt and returns it Base64-encoded. The result is
// deterministic for identical (password, salt) pairs.
func HashPassword(password, salt string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("password must not be empty: %w", common.ErrorInvalidArgument)
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("malformed salt: %w", common.ErrorInvalidArgument)
	}
	key := pbkdf2.Key([]byte(password), saltBytes, iterations, keySize, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// HashPasswordNew generates a fresh salt and derives the hash in one step.
func HashPasswordNew(password string) (hash, salt string, err error) {
	if strings.TrimSpace(password) == "" {
		return "", "", fmt.Errorf("password must not be empty: %w", common.ErrorInvalidArgument)
	}
	salt, err = GenerateSalt()
	if err != nil {
		return "", "", err
	}
	hash, err = HashPassword(password, salt)
	if err != nil {
		return "", "", err
	}
	return hash, salt, nil
}

// VerifyPassword recomputes the hash of password with the stored salt and
// compares it to the stored hash in constant time. Malformed or blank
// inputs degrade to false; this function never returns an error so that
// callers cannot distinguish "bad stored data" from "wrong password".
func VerifyPassword(password, storedHash, storedSalt string) bool {
	if strings.TrimSpace(password) == "" ||
		strings.TrimSpace(storedHash) == "" ||
		strings.TrimSpace(storedSalt) == "" {
		return false
	}

	saltBytes, err := base64.StdEncoding.DecodeString(storedSalt)
	if err != nil {
		return false
	}
	hashBytes, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil {
		return false
	}

	computed := pbkdf2.Key([]byte(password), saltBytes, iterations, keySize, sha256.New)

	return subtle.ConstantTimeCompare(hashBytes, computed) == 1
}

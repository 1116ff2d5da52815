// ABOUTME: Password hashing for identity credentials
// ABOUTME: Wraps golang.org/x/crypto/bcrypt with the default cost

package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxInput is the longest input bcrypt accepts.
const bcryptMaxInput = 72

// bcryptInput returns password unchanged when bcrypt can take it, otherwise a
// base64 SHA-256 digest of it (44 bytes).
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) <= bcryptMaxInput {
		return b
	}
	sum := sha256.Sum256(b)
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOrRead returns password as a bcrypt hash, hashing it unless it already is one.
func HashOrRead(password string) ([]byte, error) {
	if isBcrypt(password) {
		return []byte(password), nil
	}
	return bcrypt.GenerateFromPassword([]byte(password), 10)
}

// PasswordMatches reports whether plain matches the bcrypt hash.
func PasswordMatches(hash []byte, plain string) bool {
	if len(hash) == 0 || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

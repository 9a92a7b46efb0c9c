// Package hash stores and checks broadcast sender keys as bcrypt hashes.
package hash

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyCost      = bcrypt.DefaultCost
	minKeyLength = 16
)

var ErrKeyMismatch = errors.New("key does not match")

func HashKey(key string) (string, error) {
	if len(key) < minKeyLength {
		return "", fmt.Errorf("key must be at least %d characters", minKeyLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), keyCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}

	return string(hashed), nil
}

// VerifyKey returns ErrKeyMismatch when key does not produce hashedKey.
func VerifyKey(hashedKey, key string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrKeyMismatch
	}
	return err
}

// Package crypto хеширует и проверяет API ключи сервера синхронизации.
package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyAPIKey возвращается для пустого ключа или хеша
	ErrEmptyAPIKey = errors.New("api key cannot be empty")
	// ErrInvalidAPIKey ключ не соответствует хешу
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// HashAPIKey хеширует API ключ через bcrypt для хранения в api_key_hash.
// cost 0 означает bcrypt.DefaultCost
func HashAPIKey(apiKey string, cost int) (string, error) {
	if apiKey == "" {
		return "", ErrEmptyAPIKey
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	return string(hash), nil
}

// VerifyAPIKey проверяет, соответствует ли apiKey сохраненному хешу
func VerifyAPIKey(apiKey string, hash []byte) error {
	if apiKey == "" || len(hash) == 0 {
		return ErrEmptyAPIKey
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(apiKey)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidAPIKey
		}
		return fmt.Errorf("%w: %w", ErrInvalidAPIKey, err)
	}

	return nil
}

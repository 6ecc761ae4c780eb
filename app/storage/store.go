package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

// Store is a namespaced key-value store of serialized records.
type Store interface {
	Save(key string, value []byte) error
	// Load returns ErrNotFound when the key is absent.
	Load(key string) ([]byte, error)
	Remove(key string) error
	// Clear removes every key of the store's namespace.
	Clear() error
}

func SaveJSON[T any](s Store, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Save(key, data)
}

// LoadJSON reports ok=false when the key is absent.
func LoadJSON[T any](s Store, key string) (T, bool, error) {
	var value T

	data, err := s.Load(key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return value, true, nil
}

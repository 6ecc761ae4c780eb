package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*SQLStore)(nil)

// SQLStore keeps records in the kv_store table, one row per namespace and key.
type SQLStore struct {
	db        *DB
	namespace string
}

func NewSQLStore(db *DB, namespace string) *SQLStore {
	return &SQLStore{db: db, namespace: namespace}
}

func (s *SQLStore) Save(key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO kv_store (namespace, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)

	_, err := s.db.Exec(query, s.namespace, key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Load(key string) ([]byte, error) {
	query := s.db.Rebind(`SELECT value FROM kv_store WHERE namespace = ? AND name = ?`)

	var value string
	err := s.db.Get(&value, query, s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s in namespace %s: %w", key, s.namespace, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLStore) Remove(key string) error {
	query := s.db.Rebind(`DELETE FROM kv_store WHERE namespace = ? AND name = ?`)

	if _, err := s.db.Exec(query, s.namespace, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Clear() error {
	query := s.db.Rebind(`DELETE FROM kv_store WHERE namespace = ?`)

	if _, err := s.db.Exec(query, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", s.namespace, err)
	}
	return nil
}

// Keys lists the namespace's keys in name order.
func (s *SQLStore) Keys() ([]string, error) {
	query := s.db.Rebind(`SELECT name FROM kv_store WHERE namespace = ? ORDER BY name`)

	var keys []string
	if err := s.db.Select(&keys, query, s.namespace); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

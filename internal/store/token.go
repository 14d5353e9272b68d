package store

import (
	"database/sql"
	"fmt"

	"github.com/stayverify/stayverify/internal/model"
)

// TokenStore is the durable mirror of the in-memory magic-link cache.
// Records are keyed by token and expire lazily on resolve.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Put(t model.AuthToken) error {
	_, err := s.db.Exec(
		`INSERT INTO magic_links (token, email, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET email = excluded.email, expires_at = excluded.expires_at`,
		t.Token, t.Email, t.ExpiresAt.UTC(), t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert magic link: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(token string) (*model.AuthToken, error) {
	var t model.AuthToken
	err := s.db.QueryRow(
		`SELECT token, email, expires_at, created_at FROM magic_links WHERE token = ?`,
		token,
	).Scan(&t.Token, &t.Email, &t.ExpiresAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get magic link: %w", err)
	}
	return &t, nil
}

func (s *TokenStore) Delete(token string) error {
	_, err := s.db.Exec(`DELETE FROM magic_links WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete magic link: %w", err)
	}
	return nil
}

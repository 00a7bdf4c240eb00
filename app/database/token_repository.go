package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ TokenRepository = (*TokenRepo)(nil)

// TokenRepo implements TokenRepository on SQLite.
type TokenRepo struct {
	db *DB
}

func NewTokenRepository(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

func (r *TokenRepo) SaveToken(t *Token) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(`
		INSERT INTO tokens (token, friend_id, valid_until, code_challenge, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			valid_until = excluded.valid_until,
			code_challenge = excluded.code_challenge
	`, t.Token, t.FriendID, t.ValidUntil.UTC().Format(timeLayout), t.CodeChallenge,
		t.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *TokenRepo) GetToken(token string) (*Token, error) {
	var t Token
	var validUntil, createdAt string
	err := r.db.QueryRow(`
		SELECT token, friend_id, valid_until, code_challenge, created_at
		FROM tokens WHERE token = ?
	`, token).Scan(&t.Token, &t.FriendID, &validUntil, &t.CodeChallenge, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	t.ValidUntil, _ = time.Parse(timeLayout, validUntil)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &t, nil
}

func (r *TokenRepo) DeleteToken(token string) error {
	_, err := r.db.Exec("DELETE FROM tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *TokenRepo) DeleteExpiredTokens() error {
	_, err := r.db.Exec("DELETE FROM tokens WHERE valid_until < ?",
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return nil
}

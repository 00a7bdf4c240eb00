package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ SubscriptionRepository = (*SubscriptionRepo)(nil)

// SubscriptionRepo implements SubscriptionRepository on SQLite.
type SubscriptionRepo struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `id, friend_id, url, title, parser, mime_type,
	post_format, active, last_log, created_at, updated_at`

// UpsertSubscription inserts the subscription, or updates its metadata when
// the (friend, url) pair already exists. The ID of an existing row is
// written back into s.
func (r *SubscriptionRepo) UpsertSubscription(s *Subscription) error {
	existing, err := r.getSubscriptionWhere("friend_id = ? AND url = ?", s.FriendID, s.URL)
	if err != nil {
		return fmt.Errorf("failed to check existing subscription: %w", err)
	}

	now := time.Now().UTC()
	if existing != nil {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		_, err = r.db.Exec(`
			UPDATE subscriptions
			SET title = ?, parser = ?, mime_type = ?, post_format = ?, active = ?, updated_at = ?
			WHERE id = ?
		`, s.Title, s.Parser, s.MimeType, s.PostFormat, boolToInt(s.Active),
			now.Format(timeLayout), s.ID)
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
		_, err = r.db.Exec(`
			INSERT INTO subscriptions (`+subscriptionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ID, s.FriendID, s.URL, s.Title, s.Parser, s.MimeType,
			s.PostFormat, boolToInt(s.Active), s.LastLog,
			now.Format(timeLayout), now.Format(timeLayout))
	}
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	s.UpdatedAt = now
	return nil
}

func (r *SubscriptionRepo) GetSubscription(id string) (*Subscription, error) {
	return r.getSubscriptionWhere("id = ?", id)
}

func (r *SubscriptionRepo) getSubscriptionWhere(where string, args ...interface{}) (*Subscription, error) {
	row := r.db.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+where, args...)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepo) GetSubscriptionsForFriend(friendID string) ([]Subscription, error) {
	rows, err := r.db.Query(`
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE friend_id = ?
		ORDER BY created_at
	`, friendID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions for friend: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// GetActiveSubscriptions returns active subscriptions whose owning friend
// has one of the given roles, in friend enumeration order.
func (r *SubscriptionRepo) GetActiveSubscriptions(roles ...string) ([]Subscription, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(roles)-1) + "?"
	args := make([]interface{}, len(roles))
	for i, role := range roles {
		args[i] = role
	}

	rows, err := r.db.Query(`
		SELECT s.id, s.friend_id, s.url, s.title, s.parser, s.mime_type,
		       s.post_format, s.active, s.last_log, s.created_at, s.updated_at
		FROM subscriptions s
		JOIN friends f ON f.id = s.friend_id
		WHERE s.active = 1 AND f.role IN (`+placeholders+`)
		ORDER BY f.created_at, s.created_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *SubscriptionRepo) SetSubscriptionActive(id string, active bool) error {
	_, err := r.db.Exec(`
		UPDATE subscriptions SET active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to set subscription active status: %w", err)
	}
	return nil
}

// UpdateLastLog stores a timestamped log line describing the last fetch
// outcome. Lines are capped at 1000 characters.
func (r *SubscriptionRepo) UpdateLastLog(id string, line string) error {
	entry := time.Now().UTC().Format("2006-01-02 15:04:05") + ": " + line
	if len(entry) > 1000 {
		entry = entry[:1000]
	}
	_, err := r.db.Exec(`
		UPDATE subscriptions SET last_log = ?, updated_at = ? WHERE id = ?
	`, entry, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to update last log: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) DeleteSubscription(id string) error {
	_, err := r.db.Exec("DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	var active int
	var createdAt, updatedAt string
	err := row.Scan(
		&s.ID, &s.FriendID, &s.URL, &s.Title, &s.Parser, &s.MimeType,
		&s.PostFormat, &active, &s.LastLog, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Active = active != 0
	s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &s, nil
}

func scanSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ FriendRepository = (*FriendRepo)(nil)

// FriendRepo implements FriendRepository on SQLite.
type FriendRepo struct {
	db *DB
}

func NewFriendRepository(db *DB) *FriendRepo {
	return &FriendRepo{db: db}
}

const friendColumns = `id, url, display_name, icon_url, role, out_token, in_token,
	request_id, request_hash, future_in_token, future_out_token, request_message,
	catch_all, new_friend, created_at, updated_at`

// CreateFriend inserts a new friend and populates its ID and timestamps.
func (r *FriendRepo) CreateFriend(f *Friend) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CatchAll == "" {
		f.CatchAll = "accept"
	}
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO friends (`+friendColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.URL, f.DisplayName, f.IconURL, f.Role, f.OutToken, f.InToken,
		f.RequestID, f.RequestHash, f.FutureInToken, f.FutureOutToken, f.RequestMessage,
		f.CatchAll, boolToInt(f.NewFriend), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert friend: %w", err)
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	return nil
}

func (r *FriendRepo) GetFriend(id string) (*Friend, error) {
	return r.getFriendWhere("id = ?", id)
}

func (r *FriendRepo) GetFriendByURL(url string) (*Friend, error) {
	return r.getFriendWhere("url = ?", url)
}

func (r *FriendRepo) GetFriendByInToken(token string) (*Friend, error) {
	if token == "" {
		return nil, nil
	}
	return r.getFriendWhere("in_token = ?", token)
}

func (r *FriendRepo) GetFriendByRequestHash(hash string) (*Friend, error) {
	if hash == "" {
		return nil, nil
	}
	return r.getFriendWhere("request_hash = ?", hash)
}

func (r *FriendRepo) getFriendWhere(where string, args ...interface{}) (*Friend, error) {
	row := r.db.QueryRow(`SELECT `+friendColumns+` FROM friends WHERE `+where, args...)
	friend, err := scanFriend(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend: %w", err)
	}
	return friend, nil
}

// GetFriendsByRoles returns all friends having one of the given roles.
func (r *FriendRepo) GetFriendsByRoles(roles ...string) ([]Friend, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(roles)-1) + "?"
	args := make([]interface{}, len(roles))
	for i, role := range roles {
		args[i] = role
	}

	rows, err := r.db.Query(`
		SELECT `+friendColumns+` FROM friends
		WHERE role IN (`+placeholders+`)
		ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get friends by roles: %w", err)
	}
	defer rows.Close()

	var friends []Friend
	for rows.Next() {
		friend, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend row: %w", err)
		}
		friends = append(friends, *friend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend rows: %w", err)
	}
	return friends, nil
}

// UpdateFriend persists all mutable fields of the friend.
func (r *FriendRepo) UpdateFriend(f *Friend) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE friends
		SET url = ?, display_name = ?, icon_url = ?, role = ?, out_token = ?,
		    in_token = ?, request_id = ?, request_hash = ?, future_in_token = ?,
		    future_out_token = ?, request_message = ?, catch_all = ?,
		    new_friend = ?, updated_at = ?
		WHERE id = ?
	`, f.URL, f.DisplayName, f.IconURL, f.Role, f.OutToken,
		f.InToken, f.RequestID, f.RequestHash, f.FutureInToken,
		f.FutureOutToken, f.RequestMessage, f.CatchAll,
		boolToInt(f.NewFriend), now.Format(timeLayout), f.ID)
	if err != nil {
		return fmt.Errorf("failed to update friend: %w", err)
	}
	f.UpdatedAt = now
	return nil
}

func (r *FriendRepo) DeleteFriend(id string) error {
	_, err := r.db.Exec("DELETE FROM friends WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete friend: %w", err)
	}
	return nil
}

func (r *FriendRepo) GetFriendCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM friends").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get friend count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFriend(row rowScanner) (*Friend, error) {
	var f Friend
	var newFriend int
	var createdAt, updatedAt string
	err := row.Scan(
		&f.ID, &f.URL, &f.DisplayName, &f.IconURL, &f.Role, &f.OutToken, &f.InToken,
		&f.RequestID, &f.RequestHash, &f.FutureInToken, &f.FutureOutToken, &f.RequestMessage,
		&f.CatchAll, &newFriend, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.NewFriend = newFriend != 0
	f.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	f.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

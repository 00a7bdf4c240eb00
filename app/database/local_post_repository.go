package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ LocalPostRepository = (*LocalPostRepo)(nil)

// LocalPostRepo implements LocalPostRepository on SQLite.
type LocalPostRepo struct {
	db *DB
}

func NewLocalPostRepository(db *DB) *LocalPostRepo {
	return &LocalPostRepo{db: db}
}

func (r *LocalPostRepo) CreateLocalPost(p *LocalPost) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPublish
	}
	now := time.Now().UTC()
	if p.PublishedAt.IsZero() {
		p.PublishedAt = now
	}
	p.UpdatedAt = now
	_, err := r.db.Exec(`
		INSERT INTO local_posts (id, title, content, status, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Title, p.Content, p.Status,
		p.PublishedAt.UTC().Format(timeLayout), p.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert local post: %w", err)
	}
	return nil
}

func (r *LocalPostRepo) GetLocalPost(id string) (*LocalPost, error) {
	row := r.db.QueryRow(`
		SELECT id, title, content, status, published_at, updated_at
		FROM local_posts WHERE id = ?
	`, id)
	post, err := scanLocalPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get local post: %w", err)
	}
	return post, nil
}

func (r *LocalPostRepo) GetLocalPosts(limit int, statuses ...string) ([]LocalPost, error) {
	if len(statuses) == 0 {
		statuses = []string{StatusPublish}
	}
	placeholders := strings.Repeat("?, ", len(statuses)-1) + "?"
	args := make([]interface{}, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, status)
	}
	args = append(args, limit)

	rows, err := r.db.Query(`
		SELECT id, title, content, status, published_at, updated_at
		FROM local_posts
		WHERE status IN (`+placeholders+`)
		ORDER BY published_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get local posts: %w", err)
	}
	defer rows.Close()

	var posts []LocalPost
	for rows.Next() {
		post, err := scanLocalPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan local post row: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local post rows: %w", err)
	}
	return posts, nil
}

func (r *LocalPostRepo) DeleteLocalPost(id string) error {
	_, err := r.db.Exec("DELETE FROM local_posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete local post: %w", err)
	}
	return nil
}

func scanLocalPost(row rowScanner) (*LocalPost, error) {
	var p LocalPost
	var publishedAt, updatedAt string
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Status, &publishedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.PublishedAt, _ = time.Parse(timeLayout, publishedAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

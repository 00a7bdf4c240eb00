package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ PostRepository = (*PostRepo)(nil)

// PostRepo implements PostRepository on SQLite.
type PostRepo struct {
	db *DB
}

func NewPostRepository(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

const postColumns = `id, friend_id, guid, remote_post_id, title, content, status,
	post_format, author_name, gravatar, comment_count, published_at, modified_at,
	created_at`

// GetPostIdentities returns the identity slice of every cached post of the
// friend, including trashed ones, for dedup index construction.
func (r *PostRepo) GetPostIdentities(friendID string) ([]PostIdentity, error) {
	rows, err := r.db.Query(`
		SELECT id, guid, remote_post_id FROM posts WHERE friend_id = ?
	`, friendID)
	if err != nil {
		return nil, fmt.Errorf("failed to get post identities: %w", err)
	}
	defer rows.Close()

	var identities []PostIdentity
	for rows.Next() {
		var identity PostIdentity
		if err := rows.Scan(&identity.ID, &identity.GUID, &identity.RemotePostID); err != nil {
			return nil, fmt.Errorf("failed to scan post identity row: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post identity rows: %w", err)
	}
	return identities, nil
}

// GetPostByGUID looks up a post of the friend by any of the given guid
// variants.
func (r *PostRepo) GetPostByGUID(friendID string, guids ...string) (*Post, error) {
	if len(guids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(guids)-1) + "?"
	args := []interface{}{friendID}
	for _, guid := range guids {
		args = append(args, guid)
	}
	return r.getPostWhere("friend_id = ? AND guid IN ("+placeholders+")", args...)
}

func (r *PostRepo) GetPostByRemoteID(friendID, remotePostID string) (*Post, error) {
	if remotePostID == "" {
		return nil, nil
	}
	return r.getPostWhere("friend_id = ? AND remote_post_id = ?", friendID, remotePostID)
}

func (r *PostRepo) getPostWhere(where string, args ...interface{}) (*Post, error) {
	row := r.db.QueryRow(`SELECT `+postColumns+` FROM posts WHERE `+where+` LIMIT 1`, args...)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// InsertPost stores a new cached post. CreatedAt is taken from the post
// itself so that the remote published time is preserved.
func (r *PostRepo) InsertPost(p *Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.PublishedAt
	}
	_, err := r.db.Exec(`
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.FriendID, p.GUID, p.RemotePostID, p.Title, p.Content, p.Status,
		p.PostFormat, p.AuthorName, p.Gravatar, p.CommentCount,
		p.PublishedAt.UTC().Format(timeLayout), formatNullableTime(p.ModifiedAt),
		p.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// UpdatePost persists the re-fetched fields of an existing post in place.
func (r *PostRepo) UpdatePost(p *Post) error {
	_, err := r.db.Exec(`
		UPDATE posts
		SET title = ?, content = ?, status = ?, remote_post_id = ?,
		    author_name = ?, gravatar = ?, comment_count = ?, modified_at = ?
		WHERE id = ?
	`, p.Title, p.Content, p.Status, p.RemotePostID,
		p.AuthorName, p.Gravatar, p.CommentCount, formatNullableTime(p.ModifiedAt),
		p.ID)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return nil
}

// DeletePost removes the post together with its reaction rows.
func (r *PostRepo) DeletePost(id string) error {
	if _, err := r.db.Exec("DELETE FROM post_reactions WHERE post_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete post reactions: %w", err)
	}
	if _, err := r.db.Exec("DELETE FROM posts WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func (r *PostRepo) GetPostsForFriend(friendID string, statuses ...string) ([]Post, error) {
	if len(statuses) == 0 {
		statuses = []string{StatusPublish}
	}
	placeholders := strings.Repeat("?, ", len(statuses)-1) + "?"
	args := []interface{}{friendID}
	for _, status := range statuses {
		args = append(args, status)
	}

	rows, err := r.db.Query(`
		SELECT `+postColumns+` FROM posts
		WHERE friend_id = ? AND status IN (`+placeholders+`)
		ORDER BY published_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts for friend: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	return posts, nil
}

// GetPostsWithoutContent returns published posts of the friend whose feed
// carried no body, candidates for content extraction.
func (r *PostRepo) GetPostsWithoutContent(friendID string, limit int) ([]Post, error) {
	rows, err := r.db.Query(`
		SELECT `+postColumns+` FROM posts
		WHERE friend_id = ? AND status = ? AND content = ''
		ORDER BY published_at DESC
		LIMIT ?
	`, friendID, StatusPublish, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts without content: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	return posts, nil
}

// UpdatePostContent replaces only the content of a post.
func (r *PostRepo) UpdatePostContent(id string, content string) error {
	_, err := r.db.Exec("UPDATE posts SET content = ? WHERE id = ?", content, id)
	if err != nil {
		return fmt.Errorf("failed to update post content: %w", err)
	}
	return nil
}

func (r *PostRepo) GetPostCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get post count: %w", err)
	}
	return count, nil
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var publishedAt, createdAt string
	var modifiedAt sql.NullString
	err := row.Scan(
		&p.ID, &p.FriendID, &p.GUID, &p.RemotePostID, &p.Title, &p.Content, &p.Status,
		&p.PostFormat, &p.AuthorName, &p.Gravatar, &p.CommentCount, &publishedAt,
		&modifiedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.PublishedAt, _ = time.Parse(timeLayout, publishedAt)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if modifiedAt.Valid {
		t, err := time.Parse(timeLayout, modifiedAt.String)
		if err == nil {
			p.ModifiedAt = &t
		}
	}
	return &p, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

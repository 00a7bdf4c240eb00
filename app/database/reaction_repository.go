package database

import (
	"fmt"
)

var _ ReactionRepository = (*ReactionRepo)(nil)

// ReactionRepo implements ReactionRepository on SQLite.
type ReactionRepo struct {
	db *DB
}

func NewReactionRepository(db *DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// ReplaceReactions swaps the stored reaction summary of the post with the
// one just imported from the feed.
func (r *ReactionRepo) ReplaceReactions(postID string, reactions []Reaction) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM post_reactions WHERE post_id = ?", postID); err != nil {
		return fmt.Errorf("failed to clear reactions: %w", err)
	}

	for _, reaction := range reactions {
		_, err := tx.Exec(`
			INSERT INTO post_reactions (post_id, slug, count, usernames, you_reacted)
			VALUES (?, ?, ?, ?, ?)
		`, postID, reaction.Slug, reaction.Count, reaction.Usernames,
			boolToInt(reaction.YouReacted))
		if err != nil {
			return fmt.Errorf("failed to insert reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reactions: %w", err)
	}
	return nil
}

func (r *ReactionRepo) GetReactions(postID string) ([]Reaction, error) {
	rows, err := r.db.Query(`
		SELECT post_id, slug, count, usernames, you_reacted
		FROM post_reactions WHERE post_id = ? ORDER BY slug
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reactions: %w", err)
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var reaction Reaction
		var youReacted int
		err := rows.Scan(&reaction.PostID, &reaction.Slug, &reaction.Count,
			&reaction.Usernames, &youReacted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reaction row: %w", err)
		}
		reaction.YouReacted = youReacted != 0
		reactions = append(reactions, reaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reaction rows: %w", err)
	}
	return reactions, nil
}

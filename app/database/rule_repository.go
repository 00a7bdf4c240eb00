package database

import (
	"fmt"
)

var _ RuleRepository = (*RuleRepo)(nil)

// RuleRepo implements RuleRepository on SQLite.
type RuleRepo struct {
	db *DB
}

func NewRuleRepository(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// ReplaceRules swaps the friend's rule set wholesale. Positions are
// renumbered from the slice order.
func (r *RuleRepo) ReplaceRules(friendID string, rules []Rule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM rules WHERE friend_id = ?", friendID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	for i, rule := range rules {
		_, err := tx.Exec(`
			INSERT INTO rules (friend_id, position, field, regex, action, replacement)
			VALUES (?, ?, ?, ?, ?, ?)
		`, friendID, i, rule.Field, rule.Regex, rule.Action, rule.Replacement)
		if err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

// GetRules returns the friend's rules in evaluation order.
func (r *RuleRepo) GetRules(friendID string) ([]Rule, error) {
	rows, err := r.db.Query(`
		SELECT friend_id, position, field, regex, action, replacement
		FROM rules
		WHERE friend_id = ?
		ORDER BY position
	`, friendID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		err := rows.Scan(&rule.FriendID, &rule.Position, &rule.Field,
			&rule.Regex, &rule.Action, &rule.Replacement)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	return rules, nil
}

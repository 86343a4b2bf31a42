package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// SaveLineRule inserts or updates an exclusion rule.
func (r *SQLRepository) SaveLineRule(ctx context.Context, rule *domain.LineRule) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO line_rules (id, name, description, expression, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, boolToInt(rule.Enabled),
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListLineRules returns every rule, enabled or not, ordered by ID.
func (r *SQLRepository) ListLineRules(ctx context.Context) ([]*domain.LineRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM line_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.LineRule
	for rows.Next() {
		var rule domain.LineRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

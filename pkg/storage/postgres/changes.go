package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/hubcap/pkg/hooks"
)

// AddChange appends a change record, assigning its sequence number.
func (s *Store) AddChange(ctx context.Context, change *hooks.Change) error {
	query := `
		INSERT INTO changes (change_id, type, target_name, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		change.ChangeID,
		change.Type,
		change.TargetName,
		[]byte(change.Data),
		change.CreatedAt,
	).Scan(&change.Seq)
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

// ListChangesSince returns changes strictly after seq in append order.
func (s *Store) ListChangesSince(ctx context.Context, seq int64, limit int) ([]*hooks.Change, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT seq, change_id, type, target_name, data, created_at
		FROM changes
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var out []*hooks.Change
	for rows.Next() {
		var c hooks.Change
		var data []byte
		if err := rows.Scan(&c.Seq, &c.ChangeID, &c.Type, &c.TargetName, &data, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Data = data
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}
	return out, nil
}

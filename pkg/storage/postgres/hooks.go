package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

const hookColumns = `hook_id, type, owner_id, name, endpoint, secret, enabled, created_at, updated_at`

// CreateHook stores a new subscription and invalidates cached lookups.
func (s *Store) CreateHook(ctx context.Context, hook *hooks.Hook) error {
	query := `
		INSERT INTO hooks (hook_id, type, owner_id, name, endpoint, secret, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		hook.HookID, hook.Type, hook.OwnerID, hook.Name,
		hook.Endpoint, hook.Secret, hook.Enabled, hook.CreatedAt, hook.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create hook: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, hook.HookID)
	}
	return nil
}

// GetHook returns the hook snapshot, serving cached copies when possible.
func (s *Store) GetHook(ctx context.Context, hookID string) (*hooks.Hook, error) {
	if s.cache != nil {
		if h, ok := s.cache.Get(ctx, hookID); ok {
			return h, nil
		}
	}

	query := `SELECT ` + hookColumns + ` FROM hooks WHERE hook_id = $1`
	h, err := scanHook(s.db.QueryRowContext(ctx, query, hookID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrHookNotFound
		}
		return nil, fmt.Errorf("failed to get hook: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, h)
	}
	return h, nil
}

// DeleteHook removes a subscription and drops it from the cache.
func (s *Store) DeleteHook(ctx context.Context, hookID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM hooks WHERE hook_id = $1`, hookID)
	if err != nil {
		return fmt.Errorf("failed to delete hook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete hook: %w", err)
	}
	if affected == 0 {
		return storage.ErrHookNotFound
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, hookID)
	}
	return nil
}

// FindMatching returns every enabled hook whose scope subsumes targetName:
// exact-name package hooks, scope hooks on the name's scope, and owner hooks
// of the target's owner. The result is an unordered set.
func (s *Store) FindMatching(ctx context.Context, targetName, ownerID string) ([]*hooks.Hook, error) {
	scope := hooks.ScopeOf(targetName)

	query := `
		SELECT ` + hookColumns + `
		FROM hooks
		WHERE enabled
		  AND (
			(type = $1 AND name = $2)
			OR (type = $3 AND name = $4 AND $4 <> '')
			OR (type = $5 AND owner_id = $6 AND $6 <> '')
		  )
	`
	rows, err := s.db.QueryContext(ctx, query,
		hooks.HookTypePackage, targetName,
		hooks.HookTypeScope, scope,
		hooks.HookTypeOwner, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find matching hooks: %w", err)
	}
	defer rows.Close()
	return collectHooks(rows)
}

// ListHooksByName returns hooks subscribed to the exact name.
func (s *Store) ListHooksByName(ctx context.Context, name string) ([]*hooks.Hook, error) {
	query := `SELECT ` + hookColumns + ` FROM hooks WHERE name = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list hooks: %w", err)
	}
	defer rows.Close()
	return collectHooks(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHook(row rowScanner) (*hooks.Hook, error) {
	var h hooks.Hook
	err := row.Scan(&h.HookID, &h.Type, &h.OwnerID, &h.Name,
		&h.Endpoint, &h.Secret, &h.Enabled, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func collectHooks(rows *sql.Rows) ([]*hooks.Hook, error) {
	var out []*hooks.Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hook: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hooks: %w", err)
	}
	return out, nil
}

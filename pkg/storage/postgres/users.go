package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/hubcap/pkg/storage"
)

// FindUserName resolves a user id to its username for the hookOwner field.
func (s *Store) FindUserName(ctx context.Context, userID string) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE user_id = $1`, userID).Scan(&username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	return username, nil
}

// FindPackageOwner resolves the owning user of a package, or "" when the
// package has no recorded owner. Owner-scoped hooks never match in that case.
func (s *Store) FindPackageOwner(ctx context.Context, targetName string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM package_owners WHERE target_name = $1`, targetName).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find package owner: %w", err)
	}
	return userID, nil
}

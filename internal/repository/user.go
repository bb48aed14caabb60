package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/notifysettings/internal/domain"
)

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &user,
		`SELECT id, email, display_name, flags, actor_id, created_at, updated_at
		 FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %d: %w", id, err)
	}
	return &user, nil
}

// VerifiedEmails returns the addresses the user may route notifications to:
// the primary address first, then every verified secondary address.
func (r *UserRepository) VerifiedEmails(ctx context.Context, userID int64) ([]string, error) {
	var emails []string
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &emails,
		`SELECT email FROM (
		     SELECT email, 0 AS pos FROM users WHERE id = $1
		     UNION
		     SELECT email, 1 AS pos FROM user_emails WHERE user_id = $1 AND is_verified
		 ) e
		 GROUP BY email
		 ORDER BY MIN(pos), email`, userID)
	if err != nil {
		return nil, fmt.Errorf("list verified emails for user %d: %w", userID, err)
	}
	return emails, nil
}

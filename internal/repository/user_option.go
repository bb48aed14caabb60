package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/notifysettings/internal/domain"
)

// UserOptionRepository handles the legacy user_options table.
type UserOptionRepository struct {
	db *sqlx.DB
}

// NewUserOptionRepository creates a new UserOptionRepository.
func NewUserOptionRepository(db *sqlx.DB) *UserOptionRepository {
	return &UserOptionRepository{db: db}
}

// Get retrieves a single option.
func (r *UserOptionRepository) Get(ctx context.Context, key domain.UserOptionKey) (*domain.UserOption, error) {
	var opt domain.UserOption
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &opt,
		`SELECT id, user_id, project_id, organization_id, key, value
		 FROM user_options
		 WHERE user_id = $1
		   AND project_id IS NOT DISTINCT FROM $2
		   AND organization_id IS NOT DISTINCT FROM $3
		   AND key = $4`,
		key.UserID, key.ProjectID, key.OrganizationID, key.Key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user option %s for user %d: %w", key.Key, key.UserID, err)
	}
	return &opt, nil
}

// List returns every option of the user stored under key, across projects
// and organizations.
func (r *UserOptionRepository) List(ctx context.Context, userID int64, key string) ([]domain.UserOption, error) {
	var opts []domain.UserOption
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &opts,
		`SELECT id, user_id, project_id, organization_id, key, value
		 FROM user_options
		 WHERE user_id = $1 AND key = $2
		 ORDER BY id`,
		userID, key)
	if err != nil {
		return nil, fmt.Errorf("list user options %s for user %d: %w", key, userID, err)
	}
	return opts, nil
}

// Set creates or replaces an option.
func (r *UserOptionRepository) Set(ctx context.Context, key domain.UserOptionKey, value string) error {
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO user_options (user_id, project_id, organization_id, key, value)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, (COALESCE(project_id, 0)), (COALESCE(organization_id, 0)), key)
		 DO UPDATE SET value = EXCLUDED.value`,
		key.UserID, key.ProjectID, key.OrganizationID, key.Key, value)
	if err != nil {
		return fmt.Errorf("set user option %s for user %d: %w", key.Key, key.UserID, err)
	}
	return nil
}

// Unset removes an option. Removing a missing option is not an error.
func (r *UserOptionRepository) Unset(ctx context.Context, key domain.UserOptionKey) error {
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM user_options
		 WHERE user_id = $1
		   AND project_id IS NOT DISTINCT FROM $2
		   AND organization_id IS NOT DISTINCT FROM $3
		   AND key = $4`,
		key.UserID, key.ProjectID, key.OrganizationID, key.Key)
	if err != nil {
		return fmt.Errorf("unset user option %s for user %d: %w", key.Key, key.UserID, err)
	}
	return nil
}

// DeleteForUser removes every option of the user.
func (r *UserOptionRepository) DeleteForUser(ctx context.Context, userID int64) (int64, error) {
	return r.exec(ctx, "delete user options for user",
		`DELETE FROM user_options WHERE user_id = $1`, userID)
}

// DeleteForProject removes every option keyed by the project.
func (r *UserOptionRepository) DeleteForProject(ctx context.Context, projectID int64) (int64, error) {
	return r.exec(ctx, "delete user options for project",
		`DELETE FROM user_options WHERE project_id = $1`, projectID)
}

// DeleteForOrganization removes every option keyed by the organization or by
// one of its projects.
func (r *UserOptionRepository) DeleteForOrganization(ctx context.Context, organizationID int64) (int64, error) {
	return r.exec(ctx, "delete user options for organization",
		`DELETE FROM user_options
		 WHERE organization_id = $1
		    OR project_id IN (SELECT id FROM projects WHERE organization_id = $1)`,
		organizationID)
}

func (r *UserOptionRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

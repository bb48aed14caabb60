package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/notifysettings/internal/domain"
)

const settingColumns = `id, scope_type, scope_identifier, target_type, target_identifier, provider, type, value, created_at, updated_at`

// SettingsRepository handles the notification_settings table.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves the setting stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key domain.SettingKey) (*domain.NotificationSetting, error) {
	var setting domain.NotificationSetting
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &setting,
		`SELECT `+settingColumns+`
		 FROM notification_settings
		 WHERE scope_type = $1 AND scope_identifier = $2
		   AND target_type = $3 AND target_identifier = $4
		   AND provider = $5 AND type = $6`,
		key.Scope.Type, key.Scope.ID, key.Target.Type, key.Target.ID, key.Provider, key.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get notification setting %s: %w", key, err)
	}
	return &setting, nil
}

// GetOrCreate inserts a row with value unless one already exists for key.
// The returned bool reports whether the row was created.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, key domain.SettingKey, value domain.NotificationSettingOptionValue) (*domain.NotificationSetting, bool, error) {
	var setting domain.NotificationSetting
	err := executor(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO notification_settings (scope_type, scope_identifier, target_type, target_identifier, provider, type, value)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (scope_type, scope_identifier, target_type, target_identifier, provider, type) DO NOTHING
		 RETURNING `+settingColumns,
		key.Scope.Type, key.Scope.ID, key.Target.Type, key.Target.ID, key.Provider, key.Type, value,
	).StructScan(&setting)
	if err == nil {
		return &setting, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create notification setting %s: %w", key, err)
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateValue sets the value of an existing row.
func (r *SettingsRepository) UpdateValue(ctx context.Context, id int64, value domain.NotificationSettingOptionValue) error {
	res, err := executor(ctx, r.db).ExecContext(ctx,
		`UPDATE notification_settings SET value = $1, updated_at = NOW() WHERE id = $2`, value, id)
	if err != nil {
		return fmt.Errorf("update notification setting %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notification setting %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the row stored under key, if any.
func (r *SettingsRepository) Delete(ctx context.Context, key domain.SettingKey) (int64, error) {
	return r.exec(ctx, "delete notification setting",
		`DELETE FROM notification_settings
		 WHERE scope_type = $1 AND scope_identifier = $2
		   AND target_type = $3 AND target_identifier = $4
		   AND provider = $5 AND type = $6`,
		key.Scope.Type, key.Scope.ID, key.Target.Type, key.Target.ID, key.Provider, key.Type)
}

// ListForTarget returns the target's settings of one type at one scope type,
// ordered by scope identifier.
func (r *SettingsRepository) ListForTarget(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, target domain.Target, scopeType domain.ScopeType) ([]domain.NotificationSetting, error) {
	var settings []domain.NotificationSetting
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &settings,
		`SELECT `+settingColumns+`
		 FROM notification_settings
		 WHERE provider = $1 AND type = $2
		   AND target_type = $3 AND target_identifier = $4
		   AND scope_type = $5
		 ORDER BY scope_identifier`,
		provider, typ, target.Type, target.ID, scopeType)
	if err != nil {
		return nil, fmt.Errorf("list notification settings for %s %d: %w", target.Type, target.ID, err)
	}
	return settings, nil
}

// DeleteForTarget removes every row owned by target.
func (r *SettingsRepository) DeleteForTarget(ctx context.Context, target domain.Target) (int64, error) {
	return r.exec(ctx, "delete notification settings for target",
		`DELETE FROM notification_settings WHERE target_type = $1 AND target_identifier = $2`,
		target.Type, target.ID)
}

// DeleteForScope removes every row attached to scope.
func (r *SettingsRepository) DeleteForScope(ctx context.Context, scope domain.Scope) (int64, error) {
	return r.exec(ctx, "delete notification settings for scope",
		`DELETE FROM notification_settings WHERE scope_type = $1 AND scope_identifier = $2`,
		scope.Type, scope.ID)
}

// DeleteForOrganizationTree removes every row attached to the organization or
// to one of its projects.
func (r *SettingsRepository) DeleteForOrganizationTree(ctx context.Context, organizationID int64) (int64, error) {
	return r.exec(ctx, "delete notification settings for organization",
		`DELETE FROM notification_settings
		 WHERE (scope_type = $1 AND scope_identifier = $2)
		    OR (scope_type = $3 AND scope_identifier IN (SELECT id FROM projects WHERE organization_id = $2))`,
		domain.ScopeTypeOrganization, organizationID, domain.ScopeTypeProject)
}

func (r *SettingsRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
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

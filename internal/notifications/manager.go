package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sumire/notifysettings/internal/domain"
	"github.com/sumire/notifysettings/internal/metrics"
)

// SettingStore is the structured settings table.
type SettingStore interface {
	// Get returns domain.ErrNotFound when no row exists for key.
	Get(ctx context.Context, key domain.SettingKey) (*domain.NotificationSetting, error)
	GetOrCreate(ctx context.Context, key domain.SettingKey, value domain.NotificationSettingOptionValue) (*domain.NotificationSetting, bool, error)
	UpdateValue(ctx context.Context, id int64, value domain.NotificationSettingOptionValue) error
	Delete(ctx context.Context, key domain.SettingKey) (int64, error)
	ListForTarget(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, target domain.Target, scopeType domain.ScopeType) ([]domain.NotificationSetting, error)
	DeleteForTarget(ctx context.Context, target domain.Target) (int64, error)
	DeleteForScope(ctx context.Context, scope domain.Scope) (int64, error)
	DeleteForOrganizationTree(ctx context.Context, organizationID int64) (int64, error)
}

// OptionStore is the legacy user option table.
type OptionStore interface {
	Set(ctx context.Context, key domain.UserOptionKey, value string) error
	Unset(ctx context.Context, key domain.UserOptionKey) error
	DeleteForUser(ctx context.Context, userID int64) (int64, error)
	DeleteForProject(ctx context.Context, projectID int64) (int64, error)
	DeleteForOrganization(ctx context.Context, organizationID int64) (int64, error)
}

// TxRunner runs fn inside one database transaction. Stores called with the
// ctx passed to fn take part in that transaction, and nested calls join it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InTransaction reports whether ctx carries an open transaction.
	InTransaction(ctx context.Context) bool
	// AfterCommit runs fn once the outermost transaction in ctx commits. It is
	// dropped on rollback and runs at once when ctx has no transaction.
	AfterCommit(ctx context.Context, fn func())
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records operation outcomes and cache lookups.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithCacheTTL enables the read cache for GetSettings. Zero disables it.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.cache = newSettingsCache(ttl)
		} else {
			m.cache = nil
		}
	}
}

// Manager reads and writes notification settings. The structured table is
// the source of truth; the legacy option table is kept in step with it
// inside the same transaction.
type Manager struct {
	settings SettingStore
	options  OptionStore
	tx       TxRunner

	logger  logrus.FieldLogger
	metrics *metrics.Collector
	cache   *settingsCache
}

// NewManager creates a Manager.
func NewManager(settings SettingStore, options OptionStore, tx TxRunner, opts ...Option) *Manager {
	discard := logrus.New()
	discard.Out = io.Discard

	m := &Manager{
		settings: settings,
		options:  options,
		tx:       tx,
		logger:   discard,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateSettings stores value for the resolved key and mirrors it to the
// legacy option table. Writing NotificationSettingOptionDefault removes the
// setting instead.
func (m *Manager) UpdateSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, value domain.NotificationSettingOptionValue, p Params) error {
	if value == domain.NotificationSettingOptionDefault {
		return m.RemoveSettings(ctx, provider, typ, p)
	}

	if !Validate(typ, value) {
		m.metrics.SettingsOperation("update", typ.String(), "invalid")
		return fmt.Errorf("%w: %s does not accept %s", domain.ErrInvalidValue, typ, value)
	}

	key, err := resolveKey(provider, typ, p)
	if err != nil {
		m.metrics.SettingsOperation("update", typ.String(), "invalid")
		return err
	}

	err = m.inTx(ctx, "update settings", func(ctx context.Context) error {
		setting, created, err := m.settings.GetOrCreate(ctx, key, value)
		if err != nil {
			return err
		}
		if !created && setting.Value != value {
			if err := m.settings.UpdateValue(ctx, setting.ID, value); err != nil {
				return err
			}
		}

		m.invalidateOnCommit(ctx, key)

		optKey, ok := legacyOptionKey(key)
		if !ok {
			return nil
		}
		encoded, ok := LegacyValue(typ, value)
		if !ok {
			return nil
		}
		return m.options.Set(ctx, optKey, strconv.Itoa(encoded))
	})
	if err != nil {
		m.metrics.SettingsOperation("update", typ.String(), "error")
		return err
	}

	m.metrics.SettingsOperation("update", typ.String(), "ok")
	m.logger.WithFields(logrus.Fields{
		"key":   key.String(),
		"value": value.String(),
	}).Debug("notification setting updated")
	return nil
}

// GetSettings returns the stored value for the resolved key, or
// NotificationSettingOptionDefault when nothing is stored.
func (m *Manager) GetSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, p Params) (domain.NotificationSettingOptionValue, error) {
	key, err := resolveKey(provider, typ, p)
	if err != nil {
		return domain.NotificationSettingOptionDefault, err
	}

	// Reads inside a transaction may see uncommitted rows and bypass the cache.
	if m.cache == nil || m.tx.InTransaction(ctx) {
		return m.load(ctx, key)
	}

	value, hit, err := m.cache.get(ctx, key, func(ctx context.Context) (domain.NotificationSettingOptionValue, error) {
		return m.load(ctx, key)
	})
	if hit {
		m.metrics.CacheHit()
	} else {
		m.metrics.CacheMiss()
	}
	return value, err
}

func (m *Manager) load(ctx context.Context, key domain.SettingKey) (domain.NotificationSettingOptionValue, error) {
	setting, err := m.settings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotificationSettingOptionDefault, nil
		}
		return domain.NotificationSettingOptionDefault, &domain.StorageError{Op: "get settings", Err: err}
	}
	return setting.Value, nil
}

// RemoveSettings deletes the setting for the resolved key and its legacy
// mirror. A missing row is not an error; afterwards reads return DEFAULT.
func (m *Manager) RemoveSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, p Params) error {
	key, err := resolveKey(provider, typ, p)
	if err != nil {
		m.metrics.SettingsOperation("remove", typ.String(), "invalid")
		return err
	}

	err = m.inTx(ctx, "remove settings", func(ctx context.Context) error {
		if _, err := m.settings.Delete(ctx, key); err != nil {
			return err
		}
		m.invalidateOnCommit(ctx, key)

		optKey, ok := legacyOptionKey(key)
		if !ok {
			return nil
		}
		return m.options.Unset(ctx, optKey)
	})
	if err != nil {
		m.metrics.SettingsOperation("remove", typ.String(), "error")
		return err
	}

	m.metrics.SettingsOperation("remove", typ.String(), "ok")
	m.logger.WithField("key", key.String()).Debug("notification setting removed")
	return nil
}

// ListUserSettings returns every setting of typ owned by userID at the given
// scope type.
func (m *Manager) ListUserSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, userID int64, scopeType domain.ScopeType) ([]domain.NotificationSetting, error) {
	target := domain.Target{Type: domain.TargetTypeUser, ID: userID}
	settings, err := m.settings.ListForTarget(ctx, provider, typ, target, scopeType)
	if err != nil {
		return nil, &domain.StorageError{Op: "list settings", Err: err}
	}
	return settings, nil
}

// RemoveSettingsForUser deletes every setting owned by or scoped to the user
// and every legacy option of the user.
func (m *Manager) RemoveSettingsForUser(ctx context.Context, userID int64) error {
	return m.bulkRemove(ctx, "remove settings for user", logrus.Fields{"user_id": userID}, func(ctx context.Context) (int64, error) {
		n1, err := m.settings.DeleteForTarget(ctx, domain.Target{Type: domain.TargetTypeUser, ID: userID})
		if err != nil {
			return 0, err
		}
		n2, err := m.settings.DeleteForScope(ctx, domain.Scope{Type: domain.ScopeTypeUser, ID: userID})
		if err != nil {
			return 0, err
		}
		n3, err := m.options.DeleteForUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		return n1 + n2 + n3, nil
	})
}

// RemoveSettingsForTeam deletes every setting owned by the team.
func (m *Manager) RemoveSettingsForTeam(ctx context.Context, teamID int64) error {
	return m.bulkRemove(ctx, "remove settings for team", logrus.Fields{"team_id": teamID}, func(ctx context.Context) (int64, error) {
		return m.settings.DeleteForTarget(ctx, domain.Target{Type: domain.TargetTypeTeam, ID: teamID})
	})
}

// RemoveSettingsForProject deletes every setting and legacy option keyed by
// the project.
func (m *Manager) RemoveSettingsForProject(ctx context.Context, projectID int64) error {
	return m.bulkRemove(ctx, "remove settings for project", logrus.Fields{"project_id": projectID}, func(ctx context.Context) (int64, error) {
		n1, err := m.settings.DeleteForScope(ctx, domain.Scope{Type: domain.ScopeTypeProject, ID: projectID})
		if err != nil {
			return 0, err
		}
		n2, err := m.options.DeleteForProject(ctx, projectID)
		if err != nil {
			return 0, err
		}
		return n1 + n2, nil
	})
}

// RemoveSettingsForOrganization deletes every setting and legacy option keyed
// by the organization or by one of its projects.
func (m *Manager) RemoveSettingsForOrganization(ctx context.Context, organizationID int64) error {
	return m.bulkRemove(ctx, "remove settings for organization", logrus.Fields{"organization_id": organizationID}, func(ctx context.Context) (int64, error) {
		n1, err := m.settings.DeleteForOrganizationTree(ctx, organizationID)
		if err != nil {
			return 0, err
		}
		n2, err := m.options.DeleteForOrganization(ctx, organizationID)
		if err != nil {
			return 0, err
		}
		return n1 + n2, nil
	})
}

func (m *Manager) bulkRemove(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context) (int64, error)) error {
	var removed int64
	err := m.inTx(ctx, op, func(ctx context.Context) error {
		n, err := fn(ctx)
		removed = n
		if err == nil && m.cache != nil {
			m.tx.AfterCommit(ctx, m.cache.flush)
		}
		return err
	})
	if err != nil {
		m.metrics.SettingsOperation(op, "all", "error")
		return err
	}

	m.metrics.SettingsOperation(op, "all", "ok")
	m.logger.WithFields(fields).WithField("rows", removed).Info(op)
	return nil
}

// invalidateOnCommit drops key from the cache once the write is visible to
// other readers.
func (m *Manager) invalidateOnCommit(ctx context.Context, key domain.SettingKey) {
	if m.cache == nil {
		return
	}
	m.tx.AfterCommit(ctx, func() { m.cache.invalidate(key) })
}

func (m *Manager) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := m.tx.InTx(ctx, fn); err != nil {
		var storageErr *domain.StorageError
		if errors.As(err, &storageErr) {
			return err
		}
		return &domain.StorageError{Op: op, Err: err}
	}
	return nil
}

// legacyOptionKey maps a setting key onto the legacy option it mirrors to.
// Team settings and types without a legacy key have no mirror.
func legacyOptionKey(key domain.SettingKey) (domain.UserOptionKey, bool) {
	if key.Target.Type != domain.TargetTypeUser {
		return domain.UserOptionKey{}, false
	}
	legacyKey, ok := LegacyKey(key.Type)
	if !ok {
		return domain.UserOptionKey{}, false
	}

	optKey := domain.UserOptionKey{UserID: key.Target.ID, Key: legacyKey}
	scopeID := key.Scope.ID
	switch key.Scope.Type {
	case domain.ScopeTypeProject:
		optKey.ProjectID = &scopeID
	case domain.ScopeTypeOrganization:
		optKey.OrganizationID = &scopeID
	}
	return optKey, true
}

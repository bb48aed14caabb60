package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sumire/notifysettings/internal/domain"
	"github.com/sumire/notifysettings/internal/notifications"
)

const (
	reportsOptionKey = "reports:disabled-organizations"
	emailOptionKey   = "mail:email"

	// resetValue in a request body puts the entry back to its default.
	resetValue = -1
)

// SettingsManager is the part of notifications.Manager used here.
type SettingsManager interface {
	UpdateSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, value domain.NotificationSettingOptionValue, p notifications.Params) error
	RemoveSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, p notifications.Params) error
	ListUserSettings(ctx context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, userID int64, scopeType domain.ScopeType) ([]domain.NotificationSetting, error)
}

// OptionStore reads and writes legacy user options.
type OptionStore interface {
	Get(ctx context.Context, key domain.UserOptionKey) (*domain.UserOption, error)
	List(ctx context.Context, userID int64, key string) ([]domain.UserOption, error)
	Set(ctx context.Context, key domain.UserOptionKey, value string) error
	Unset(ctx context.Context, key domain.UserOptionKey) error
}

// AccessStore lists what a user is allowed to configure.
type AccessStore interface {
	OrganizationsForUser(ctx context.Context, userID int64) ([]domain.Organization, error)
	ProjectsForUser(ctx context.Context, userID int64) ([]domain.Project, error)
}

// UserStore defines the user data access interface consumed by NotificationService.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	VerifiedEmails(ctx context.Context, userID int64) ([]string, error)
}

// TxRunner runs fn in one transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type fineTuningKind int

const (
	kindSetting fineTuningKind = iota
	kindReports
	kindEmail
)

type fineTuningType struct {
	kind        fineTuningKind
	settingType domain.NotificationSettingType
	scope       domain.ScopeType
}

var fineTuningTypes = map[string]fineTuningType{
	"alerts":   {kind: kindSetting, settingType: domain.NotificationSettingTypeIssueAlerts, scope: domain.ScopeTypeProject},
	"workflow": {kind: kindSetting, settingType: domain.NotificationSettingTypeWorkflow, scope: domain.ScopeTypeProject},
	"deploy":   {kind: kindSetting, settingType: domain.NotificationSettingTypeDeploy, scope: domain.ScopeTypeOrganization},
	"reports":  {kind: kindReports, scope: domain.ScopeTypeOrganization},
	"email":    {kind: kindEmail, scope: domain.ScopeTypeProject},
}

// NotificationService serves per-project and per-organization notification
// preferences in their legacy encodings.
type NotificationService struct {
	settings SettingsManager
	options  OptionStore
	access   AccessStore
	users    UserStore
	tx       TxRunner
	logger   logrus.FieldLogger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(settings SettingsManager, options OptionStore, access AccessStore, users UserStore, tx TxRunner, logger logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		settings: settings,
		options:  options,
		access:   access,
		users:    users,
		tx:       tx,
		logger:   logger,
	}
}

func lookupType(name string) (fineTuningType, error) {
	t, ok := fineTuningTypes[name]
	if !ok {
		return fineTuningType{}, fmt.Errorf("notification type %q: %w", name, domain.ErrNotFound)
	}
	return t, nil
}

// Get returns the user's preferences for notificationType keyed by project
// or organization id.
func (s *NotificationService) Get(ctx context.Context, userID int64, notificationType string) (map[string]any, error) {
	t, err := lookupType(notificationType)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	out := make(map[string]any)
	switch t.kind {
	case kindSetting:
		settings, err := s.settings.ListUserSettings(ctx, domain.ExternalProviderEmail, t.settingType, userID, t.scope)
		if err != nil {
			return nil, err
		}
		for _, setting := range settings {
			encoded, ok := notifications.LegacyValue(t.settingType, setting.Value)
			if !ok {
				continue
			}
			out[strconv.FormatInt(setting.ScopeIdentifier, 10)] = encoded
		}

	case kindReports:
		orgs, err := s.access.OrganizationsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		disabled, err := s.disabledReports(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, org := range orgs {
			enabled := 1
			if disabled[org.ID] {
				enabled = 0
			}
			out[strconv.FormatInt(org.ID, 10)] = enabled
		}

	case kindEmail:
		opts, err := s.options.List(ctx, userID, emailOptionKey)
		if err != nil {
			return nil, err
		}
		for _, opt := range opts {
			if opt.ProjectID == nil {
				continue
			}
			out[strconv.FormatInt(*opt.ProjectID, 10)] = opt.Value
		}
	}

	return out, nil
}

// Update applies updates, a map of project or organization id to value, for
// notificationType. Every key is checked before anything is written and all
// writes share one transaction.
func (s *NotificationService) Update(ctx context.Context, userID int64, notificationType string, updates map[string]any) error {
	t, err := lookupType(notificationType)
	if err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}

	ids := make([]int64, 0, len(updates))
	values := make(map[int64]any, len(updates))
	for key, value := range updates {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a valid id", domain.ErrInvalidInput, key)
		}
		ids = append(ids, id)
		values[id] = value
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := s.checkAccess(ctx, userID, t.scope, ids); err != nil {
		return err
	}

	var write func(ctx context.Context) error
	switch t.kind {
	case kindSetting:
		write, err = s.settingWrites(userID, t, ids, values)
	case kindReports:
		write, err = s.reportWrites(userID, ids, values)
	case kindEmail:
		write, err = s.emailWrites(ctx, userID, ids, values)
	}
	if err != nil {
		return err
	}

	if err := s.tx.InTx(ctx, write); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":           userID,
		"notification_type": notificationType,
		"entries":           len(ids),
	}).Info("notification preferences updated")
	return nil
}

func (s *NotificationService) checkAccess(ctx context.Context, userID int64, scope domain.ScopeType, ids []int64) error {
	allowed := make(map[int64]bool)
	switch scope {
	case domain.ScopeTypeProject:
		projects, err := s.access.ProjectsForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			allowed[p.ID] = true
		}
	case domain.ScopeTypeOrganization:
		orgs, err := s.access.OrganizationsForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, o := range orgs {
			allowed[o.ID] = true
		}
	}

	for _, id := range ids {
		if !allowed[id] {
			return fmt.Errorf("%w: %s %d is not accessible", domain.ErrForbidden, scope, id)
		}
	}
	return nil
}

func (s *NotificationService) settingWrites(userID int64, t fineTuningType, ids []int64, values map[int64]any) (func(ctx context.Context) error, error) {
	parsed := make(map[int64]domain.NotificationSettingOptionValue, len(ids))
	for _, id := range ids {
		n, err := parseInt(values[id])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidValue, err)
		}
		if n == resetValue {
			parsed[id] = domain.NotificationSettingOptionDefault
			continue
		}
		// Values are the legacy encodings of the translator table. Deploy
		// takes 2, 3 or 4; the raw 0 and 1 older clients sent do not decode.
		value, ok := notifications.FromLegacyValue(t.settingType, n)
		if !ok {
			return nil, fmt.Errorf("%w: %d is not a valid %s value", domain.ErrInvalidValue, n, t.settingType)
		}
		parsed[id] = value
	}

	return func(ctx context.Context) error {
		for _, id := range ids {
			p := notifications.ForUser(userID)
			if t.scope == domain.ScopeTypeProject {
				p = p.InProject(id)
			} else {
				p = p.InOrganization(id)
			}

			var err error
			if parsed[id] == domain.NotificationSettingOptionDefault {
				err = s.settings.RemoveSettings(ctx, domain.ExternalProviderEmail, t.settingType, p)
			} else {
				err = s.settings.UpdateSettings(ctx, domain.ExternalProviderEmail, t.settingType, parsed[id], p)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (s *NotificationService) reportWrites(userID int64, ids []int64, values map[int64]any) (func(ctx context.Context) error, error) {
	enable := make(map[int64]bool, len(ids))
	for _, id := range ids {
		n, err := parseInt(values[id])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidValue, err)
		}
		switch n {
		case 0:
			enable[id] = false
		case 1, resetValue:
			enable[id] = true
		default:
			return nil, fmt.Errorf("%w: reports accept 0 or 1, got %d", domain.ErrInvalidValue, n)
		}
	}

	return func(ctx context.Context) error {
		disabled, err := s.disabledReports(ctx, userID)
		if err != nil {
			return err
		}
		for id, on := range enable {
			if on {
				delete(disabled, id)
			} else {
				disabled[id] = true
			}
		}

		list := make([]int64, 0, len(disabled))
		for id := range disabled {
			list = append(list, id)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

		encoded, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode disabled organizations: %w", err)
		}
		return s.options.Set(ctx, domain.UserOptionKey{UserID: userID, Key: reportsOptionKey}, string(encoded))
	}, nil
}

func (s *NotificationService) emailWrites(ctx context.Context, userID int64, ids []int64, values map[int64]any) (func(ctx context.Context) error, error) {
	verified, err := s.users.VerifiedEmails(ctx, userID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(verified))
	for _, email := range verified {
		allowed[strings.ToLower(email)] = true
	}

	emails := make(map[int64]string, len(ids))
	for _, id := range ids {
		if n, err := parseInt(values[id]); err == nil && n == resetValue {
			emails[id] = ""
			continue
		}
		email, ok := values[id].(string)
		email = strings.TrimSpace(email)
		if !ok || !allowed[strings.ToLower(email)] {
			return nil, &domain.ValidationError{
				Field:   strconv.FormatInt(id, 10),
				Message: "must be one of your verified email addresses",
			}
		}
		emails[id] = email
	}

	return func(ctx context.Context) error {
		for _, id := range ids {
			projectID := id
			key := domain.UserOptionKey{UserID: userID, ProjectID: &projectID, Key: emailOptionKey}
			var err error
			if emails[id] == "" {
				err = s.options.Unset(ctx, key)
			} else {
				err = s.options.Set(ctx, key, emails[id])
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// disabledReports reads the set of organizations the user opted out of
// weekly reports for.
func (s *NotificationService) disabledReports(ctx context.Context, userID int64) (map[int64]bool, error) {
	disabled := make(map[int64]bool)
	opt, err := s.options.Get(ctx, domain.UserOptionKey{UserID: userID, Key: reportsOptionKey})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return disabled, nil
		}
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal([]byte(opt.Value), &ids); err != nil {
		return nil, fmt.Errorf("decode %s for user %d: %w", reportsOptionKey, userID, err)
	}
	for _, id := range ids {
		disabled[id] = true
	}
	return disabled, nil
}

// parseInt accepts JSON numbers and numeric strings.
func parseInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n.String())
		}
		return i, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

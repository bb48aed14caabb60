package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/notifysettings/internal/domain"
	"github.com/sumire/notifysettings/internal/notifications"
)

const (
	userID    int64 = 1
	orgID     int64 = 100
	org2ID    int64 = 200
	foreignID int64 = 900
	projectID int64 = 1000
	project2  int64 = 2000
)

type fakeManager struct {
	values map[domain.SettingKey]domain.NotificationSettingOptionValue
}

func keyFor(typ domain.NotificationSettingType, p notifications.Params) domain.SettingKey {
	scope := notifications.ResolveScope(*p.UserID, p.ProjectID, p.OrganizationID)
	return domain.SettingKey{
		Scope:    scope,
		Target:   domain.Target{Type: domain.TargetTypeUser, ID: *p.UserID},
		Provider: domain.ExternalProviderEmail,
		Type:     typ,
	}
}

func (m *fakeManager) UpdateSettings(_ context.Context, _ domain.ExternalProvider, typ domain.NotificationSettingType, value domain.NotificationSettingOptionValue, p notifications.Params) error {
	m.values[keyFor(typ, p)] = value
	return nil
}

func (m *fakeManager) RemoveSettings(_ context.Context, _ domain.ExternalProvider, typ domain.NotificationSettingType, p notifications.Params) error {
	delete(m.values, keyFor(typ, p))
	return nil
}

func (m *fakeManager) ListUserSettings(_ context.Context, _ domain.ExternalProvider, typ domain.NotificationSettingType, uid int64, scopeType domain.ScopeType) ([]domain.NotificationSetting, error) {
	var out []domain.NotificationSetting
	for k, v := range m.values {
		if k.Type == typ && k.Target.ID == uid && k.Scope.Type == scopeType {
			out = append(out, domain.NotificationSetting{ScopeType: k.Scope.Type, ScopeIdentifier: k.Scope.ID, Type: typ, Value: v})
		}
	}
	return out, nil
}

func (m *fakeManager) get(typ domain.NotificationSettingType, p notifications.Params) domain.NotificationSettingOptionValue {
	return m.values[keyFor(typ, p)]
}

type fakeOptions struct {
	values map[string]domain.UserOption
	sets   int
}

func optKey(k domain.UserOptionKey) string {
	var project, org int64
	if k.ProjectID != nil {
		project = *k.ProjectID
	}
	if k.OrganizationID != nil {
		org = *k.OrganizationID
	}
	return fmt.Sprintf("%d/%d/%d/%s", k.UserID, project, org, k.Key)
}

func (o *fakeOptions) Get(_ context.Context, key domain.UserOptionKey) (*domain.UserOption, error) {
	opt, ok := o.values[optKey(key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &opt, nil
}

func (o *fakeOptions) List(_ context.Context, uid int64, key string) ([]domain.UserOption, error) {
	var out []domain.UserOption
	for _, opt := range o.values {
		if opt.UserID == uid && opt.Key == key {
			out = append(out, opt)
		}
	}
	return out, nil
}

func (o *fakeOptions) Set(_ context.Context, key domain.UserOptionKey, value string) error {
	o.sets++
	o.values[optKey(key)] = domain.UserOption{UserID: key.UserID, ProjectID: key.ProjectID, OrganizationID: key.OrganizationID, Key: key.Key, Value: value}
	return nil
}

func (o *fakeOptions) Unset(_ context.Context, key domain.UserOptionKey) error {
	delete(o.values, optKey(key))
	return nil
}

type fakeAccess struct{}

func (fakeAccess) OrganizationsForUser(context.Context, int64) ([]domain.Organization, error) {
	return []domain.Organization{{ID: orgID}, {ID: org2ID}}, nil
}

func (fakeAccess) ProjectsForUser(context.Context, int64) ([]domain.Project, error) {
	return []domain.Project{{ID: projectID, OrganizationID: orgID}, {ID: project2, OrganizationID: orgID}}, nil
}

type fakeUsers struct {
	verified []string
}

func (u fakeUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if id != userID {
		return nil, domain.ErrNotFound
	}
	return &domain.User{ID: id, Email: "a@example.com"}, nil
}

func (u fakeUsers) VerifiedEmails(context.Context, int64) ([]string, error) {
	return u.verified, nil
}

type fakeTx struct {
	calls int
}

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fixture struct {
	svc      *NotificationService
	settings *fakeManager
	options  *fakeOptions
	tx       *fakeTx
}

func newFixture(verified ...string) fixture {
	logger := logrus.New()
	logger.Out = io.Discard

	f := fixture{
		settings: &fakeManager{values: make(map[domain.SettingKey]domain.NotificationSettingOptionValue)},
		options:  &fakeOptions{values: make(map[string]domain.UserOption)},
		tx:       &fakeTx{},
	}
	f.svc = NewNotificationService(f.settings, f.options, fakeAccess{}, fakeUsers{verified: verified}, f.tx, logger)
	return f
}

func body(pairs ...any) map[string]any {
	out := make(map[string]any)
	for i := 0; i < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}

func TestUpdateAlertsAndReset(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alerts := domain.NotificationSettingTypeIssueAlerts

	require.NoError(t, f.svc.Update(ctx, userID, "alerts", body(projectID, json.Number("1"), project2, json.Number("0"))))
	assert.Equal(t, domain.NotificationSettingOptionAlways, f.settings.get(alerts, notifications.ForUser(userID).InProject(projectID)))
	assert.Equal(t, domain.NotificationSettingOptionNever, f.settings.get(alerts, notifications.ForUser(userID).InProject(project2)))
	assert.Equal(t, 1, f.tx.calls)

	got, err := f.svc.Get(ctx, userID, "alerts")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1000": 1, "2000": 0}, got)

	require.NoError(t, f.svc.Update(ctx, userID, "alerts", body(projectID, -1.0)))
	assert.Equal(t, domain.NotificationSettingOptionDefault, f.settings.get(alerts, notifications.ForUser(userID).InProject(projectID)))
	assert.Equal(t, domain.NotificationSettingOptionNever, f.settings.get(alerts, notifications.ForUser(userID).InProject(project2)))
}

func TestUpdateWorkflowAcceptsStrings(t *testing.T) {
	f := newFixture()
	workflow := domain.NotificationSettingTypeWorkflow

	require.NoError(t, f.svc.Update(context.Background(), userID, "workflow", body(projectID, "1", project2, "2")))
	assert.Equal(t, domain.NotificationSettingOptionSubscribeOnly, f.settings.get(workflow, notifications.ForUser(userID).InProject(projectID)))
	assert.Equal(t, domain.NotificationSettingOptionNever, f.settings.get(workflow, notifications.ForUser(userID).InProject(project2)))
}

func TestUpdateDeployIsOrganizationScoped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Update(ctx, userID, "deploy", body(orgID, json.Number("2"))))
	assert.Equal(t, domain.NotificationSettingOptionAlways,
		f.settings.get(domain.NotificationSettingTypeDeploy, notifications.ForUser(userID).InOrganization(orgID)))

	got, err := f.svc.Get(ctx, userID, "deploy")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"100": 2}, got)

	for _, raw := range []string{"0", "1"} {
		err = f.svc.Update(ctx, userID, "deploy", body(orgID, json.Number(raw)))
		assert.ErrorIs(t, err, domain.ErrInvalidValue, raw)
	}
	assert.Equal(t, domain.NotificationSettingOptionAlways,
		f.settings.get(domain.NotificationSettingTypeDeploy, notifications.ForUser(userID).InOrganization(orgID)))
}

func TestUpdateReports(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	key := domain.UserOptionKey{UserID: userID, Key: reportsOptionKey}

	require.NoError(t, f.svc.Update(ctx, userID, "reports", body(orgID, json.Number("0"), org2ID, "0")))
	opt, err := f.options.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[100, 200]`, opt.Value)

	require.NoError(t, f.svc.Update(ctx, userID, "reports", body(orgID, json.Number("1"))))
	opt, err = f.options.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[200]`, opt.Value)

	got, err := f.svc.Get(ctx, userID, "reports")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"100": 1, "200": 0}, got)

	err = f.svc.Update(ctx, userID, "reports", body(orgID, json.Number("3")))
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestEnableReportsFromDefault(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Update(ctx, userID, "reports", body(orgID, json.Number("1"), org2ID, "1")))
	opt, err := f.options.Get(ctx, domain.UserOptionKey{UserID: userID, Key: reportsOptionKey})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, opt.Value)
}

func TestUpdateEmailRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("verified", func(t *testing.T) {
		f := newFixture("a@example.com", "alias@example.com")
		require.NoError(t, f.svc.Update(ctx, userID, "email", body(projectID, "a@example.com", project2, "alias@example.com")))

		got, err := f.svc.Get(ctx, userID, "email")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"1000": "a@example.com", "2000": "alias@example.com"}, got)
	})

	t.Run("unverified", func(t *testing.T) {
		f := newFixture("a@example.com")
		err := f.svc.Update(ctx, userID, "email", body(projectID, "alias@example.com"))

		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "1000", validationErr.Field)
		assert.Zero(t, f.options.sets)
	})

	t.Run("reset", func(t *testing.T) {
		f := newFixture("a@example.com")
		require.NoError(t, f.svc.Update(ctx, userID, "email", body(projectID, "a@example.com")))
		require.NoError(t, f.svc.Update(ctx, userID, "email", body(projectID, json.Number("-1"))))

		got, err := f.svc.Get(ctx, userID, "email")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestUpdateRejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		typ     string
		body    map[string]any
		wantErr error
	}{
		{"unknown type", "invalid", body(projectID, 1.0), domain.ErrNotFound},
		{"non-integer id", "alerts", body("nope", 1.0), domain.ErrInvalidInput},
		{"foreign project", "alerts", body(foreignID, 1.0), domain.ErrForbidden},
		{"foreign organization", "reports", body(foreignID, 0.0), domain.ErrForbidden},
		{"bad value", "alerts", body(projectID, 1.0, project2, 7.0), domain.ErrInvalidValue},
		{"fractional value", "alerts", body(projectID, 1.5), domain.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			err := f.svc.Update(ctx, userID, tt.typ, tt.body)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.tx.calls)
			assert.Empty(t, f.settings.values)
			assert.Empty(t, f.options.values)
		})
	}
}

func TestGetUnknownTypeAndUser(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Get(context.Background(), userID, "invalid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Get(context.Background(), 999, "alerts")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

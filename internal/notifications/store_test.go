package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sumire/notifysettings/internal/domain"
)

// memStore is an in-memory SettingStore, OptionStore and TxRunner. A failed
// transaction restores the state it started from.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	settings map[domain.SettingKey]domain.NotificationSetting
	options  map[string]domain.UserOption

	// projects maps project id to organization id.
	projects map[int64]int64

	gets      int
	updates   int
	failOnSet error
	failOnGet error
	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{
		settings: make(map[domain.SettingKey]domain.NotificationSetting),
		options:  make(map[string]domain.UserOption),
		projects: make(map[int64]int64),
	}
}

func optionKey(k domain.UserOptionKey) string {
	var project, org int64
	if k.ProjectID != nil {
		project = *k.ProjectID
	}
	if k.OrganizationID != nil {
		org = *k.OrganizationID
	}
	return fmt.Sprintf("%d/%d/%d/%s", k.UserID, project, org, k.Key)
}

type memTxKey struct{}

type memTx struct {
	afterCommit []func()
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	settings := make(map[domain.SettingKey]domain.NotificationSetting, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	options := make(map[string]domain.UserOption, len(s.options))
	for k, v := range s.options {
		options[k] = v
	}
	s.mu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.mu.Lock()
		s.settings = settings
		s.options = options
		s.rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()

	for _, fn := range tx.afterCommit {
		fn()
	}
	return nil
}

func (s *memStore) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(memTxKey{}).(*memTx)
	return ok
}

func (s *memStore) AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.afterCommit = append(tx.afterCommit, fn)
		return
	}
	fn()
}

func (s *memStore) Get(_ context.Context, key domain.SettingKey) (*domain.NotificationSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failOnGet != nil {
		return nil, s.failOnGet
	}
	setting, ok := s.settings[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &setting, nil
}

func (s *memStore) GetOrCreate(_ context.Context, key domain.SettingKey, value domain.NotificationSettingOptionValue) (*domain.NotificationSetting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if setting, ok := s.settings[key]; ok {
		return &setting, false, nil
	}
	s.nextID++
	setting := domain.NotificationSetting{
		ID:               s.nextID,
		ScopeType:        key.Scope.Type,
		ScopeIdentifier:  key.Scope.ID,
		TargetType:       key.Target.Type,
		TargetIdentifier: key.Target.ID,
		Provider:         key.Provider,
		Type:             key.Type,
		Value:            value,
	}
	s.settings[key] = setting
	return &setting, true, nil
}

func (s *memStore) UpdateValue(_ context.Context, id int64, value domain.NotificationSettingOptionValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, setting := range s.settings {
		if setting.ID == id {
			setting.Value = value
			s.settings[k] = setting
			s.updates++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) Delete(_ context.Context, key domain.SettingKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settings[key]; !ok {
		return 0, nil
	}
	delete(s.settings, key)
	return 1, nil
}

func (s *memStore) ListForTarget(_ context.Context, provider domain.ExternalProvider, typ domain.NotificationSettingType, target domain.Target, scopeType domain.ScopeType) ([]domain.NotificationSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NotificationSetting
	for k, setting := range s.settings {
		if k.Provider == provider && k.Type == typ && k.Target == target && k.Scope.Type == scopeType {
			out = append(out, setting)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopeIdentifier < out[j].ScopeIdentifier })
	return out, nil
}

func (s *memStore) deleteSettingsWhere(match func(domain.SettingKey) bool) int64 {
	var n int64
	for k := range s.settings {
		if match(k) {
			delete(s.settings, k)
			n++
		}
	}
	return n
}

func (s *memStore) DeleteForTarget(_ context.Context, target domain.Target) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSettingsWhere(func(k domain.SettingKey) bool { return k.Target == target }), nil
}

func (s *memStore) DeleteForScope(_ context.Context, scope domain.Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSettingsWhere(func(k domain.SettingKey) bool { return k.Scope == scope }), nil
}

func (s *memStore) DeleteForOrganizationTree(_ context.Context, organizationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSettingsWhere(func(k domain.SettingKey) bool {
		switch k.Scope.Type {
		case domain.ScopeTypeOrganization:
			return k.Scope.ID == organizationID
		case domain.ScopeTypeProject:
			org, ok := s.projects[k.Scope.ID]
			return ok && org == organizationID
		}
		return false
	}), nil
}

func (s *memStore) Set(_ context.Context, key domain.UserOptionKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnSet != nil {
		return s.failOnSet
	}
	s.options[optionKey(key)] = domain.UserOption{
		UserID:         key.UserID,
		ProjectID:      key.ProjectID,
		OrganizationID: key.OrganizationID,
		Key:            key.Key,
		Value:          value,
	}
	return nil
}

func (s *memStore) Unset(_ context.Context, key domain.UserOptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.options, optionKey(key))
	return nil
}

func (s *memStore) deleteOptionsWhere(match func(domain.UserOption) bool) int64 {
	var n int64
	for k, opt := range s.options {
		if match(opt) {
			delete(s.options, k)
			n++
		}
	}
	return n
}

func (s *memStore) DeleteForUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteOptionsWhere(func(o domain.UserOption) bool { return o.UserID == userID }), nil
}

func (s *memStore) DeleteForProject(_ context.Context, projectID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteOptionsWhere(func(o domain.UserOption) bool {
		return o.ProjectID != nil && *o.ProjectID == projectID
	}), nil
}

func (s *memStore) DeleteForOrganization(_ context.Context, organizationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteOptionsWhere(func(o domain.UserOption) bool {
		if o.OrganizationID != nil && *o.OrganizationID == organizationID {
			return true
		}
		if o.ProjectID != nil {
			org, ok := s.projects[*o.ProjectID]
			return ok && org == organizationID
		}
		return false
	}), nil
}

func (s *memStore) option(key domain.UserOptionKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opt, ok := s.options[optionKey(key)]
	return opt.Value, ok
}

var errBoom = errors.New("boom")

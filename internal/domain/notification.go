package domain

import (
	"fmt"
	"time"
)

// NotificationSettingType is the kind of notification being configured.
type NotificationSettingType int16

const (
	NotificationSettingTypeDeploy      NotificationSettingType = 10
	NotificationSettingTypeIssueAlerts NotificationSettingType = 20
	NotificationSettingTypeWorkflow    NotificationSettingType = 30
)

// NotificationSettingTypes lists every known type.
var NotificationSettingTypes = []NotificationSettingType{
	NotificationSettingTypeDeploy,
	NotificationSettingTypeIssueAlerts,
	NotificationSettingTypeWorkflow,
}

func (t NotificationSettingType) String() string {
	switch t {
	case NotificationSettingTypeDeploy:
		return "deploy"
	case NotificationSettingTypeIssueAlerts:
		return "issue_alerts"
	case NotificationSettingTypeWorkflow:
		return "workflow"
	default:
		return fmt.Sprintf("notification_setting_type(%d)", int16(t))
	}
}

// NotificationSettingOptionValue is the desired delivery behavior.
type NotificationSettingOptionValue int16

const (
	// NotificationSettingOptionDefault is never stored. Reading a missing row yields it.
	NotificationSettingOptionDefault       NotificationSettingOptionValue = 0
	NotificationSettingOptionNever         NotificationSettingOptionValue = 10
	NotificationSettingOptionAlways        NotificationSettingOptionValue = 20
	NotificationSettingOptionSubscribeOnly NotificationSettingOptionValue = 30
	NotificationSettingOptionCommittedOnly NotificationSettingOptionValue = 40
)

func (v NotificationSettingOptionValue) String() string {
	switch v {
	case NotificationSettingOptionDefault:
		return "default"
	case NotificationSettingOptionNever:
		return "never"
	case NotificationSettingOptionAlways:
		return "always"
	case NotificationSettingOptionSubscribeOnly:
		return "subscribe_only"
	case NotificationSettingOptionCommittedOnly:
		return "committed_only"
	default:
		return fmt.Sprintf("notification_setting_option(%d)", int16(v))
	}
}

// ExternalProvider is the channel a notification is delivered through.
type ExternalProvider int16

const (
	ExternalProviderEmail ExternalProvider = 100
	ExternalProviderSlack ExternalProvider = 110
)

func (p ExternalProvider) String() string {
	switch p {
	case ExternalProviderEmail:
		return "email"
	case ExternalProviderSlack:
		return "slack"
	default:
		return fmt.Sprintf("external_provider(%d)", int16(p))
	}
}

// ScopeType identifies the kind of object a setting is attached to.
type ScopeType int16

const (
	ScopeTypeUser         ScopeType = 0
	ScopeTypeOrganization ScopeType = 10
	ScopeTypeProject      ScopeType = 20
)

func (s ScopeType) String() string {
	switch s {
	case ScopeTypeUser:
		return "user"
	case ScopeTypeOrganization:
		return "organization"
	case ScopeTypeProject:
		return "project"
	default:
		return fmt.Sprintf("scope_type(%d)", int16(s))
	}
}

// TargetType identifies who a setting belongs to.
type TargetType int16

const (
	TargetTypeUser TargetType = 0
	TargetTypeTeam TargetType = 10
)

func (t TargetType) String() string {
	switch t {
	case TargetTypeUser:
		return "user"
	case TargetTypeTeam:
		return "team"
	default:
		return fmt.Sprintf("target_type(%d)", int16(t))
	}
}

// Scope is where a setting applies.
type Scope struct {
	Type ScopeType
	ID   int64
}

// Target is who a setting is for.
type Target struct {
	Type TargetType
	ID   int64
}

// SettingKey is the unique key of a NotificationSetting row.
type SettingKey struct {
	Scope    Scope
	Target   Target
	Provider ExternalProvider
	Type     NotificationSettingType
}

func (k SettingKey) String() string {
	return fmt.Sprintf("%s:%d/%s:%d/%s/%s",
		k.Scope.Type, k.Scope.ID, k.Target.Type, k.Target.ID, k.Provider, k.Type)
}

// NotificationSetting is a stored preference. At most one row exists per key.
type NotificationSetting struct {
	ID               int64                          `json:"id" db:"id"`
	ScopeType        ScopeType                      `json:"scope_type" db:"scope_type"`
	ScopeIdentifier  int64                          `json:"scope_identifier" db:"scope_identifier"`
	TargetType       TargetType                     `json:"target_type" db:"target_type"`
	TargetIdentifier int64                          `json:"target_identifier" db:"target_identifier"`
	Provider         ExternalProvider               `json:"provider" db:"provider"`
	Type             NotificationSettingType        `json:"type" db:"type"`
	Value            NotificationSettingOptionValue `json:"value" db:"value"`
	CreatedAt        time.Time                      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                      `json:"updated_at" db:"updated_at"`
}

// Key returns the unique key of the row.
func (s NotificationSetting) Key() SettingKey {
	return SettingKey{
		Scope:    Scope{Type: s.ScopeType, ID: s.ScopeIdentifier},
		Target:   Target{Type: s.TargetType, ID: s.TargetIdentifier},
		Provider: s.Provider,
		Type:     s.Type,
	}
}

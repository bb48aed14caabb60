package domain

import "time"

// OrganizationFlags is the bitfield stored on organizations.flags.
type OrganizationFlags int64

const (
	OrgFlagAllowJoinLeave OrganizationFlags = 1 << iota
	OrgFlagEnhancedPrivacy
	OrgFlagDisableSharedIssues
	OrgFlagEarlyAdopter
	OrgFlagRequire2FA
	OrgFlagDisableNewVisibilityFeatures
	OrgFlagDemoMode
)

// DefaultOrganizationFlags matches the column default.
const DefaultOrganizationFlags = OrgFlagAllowJoinLeave

// Has reports whether every bit of f is set.
func (o OrganizationFlags) Has(f OrganizationFlags) bool {
	return o&f == f
}

// Organization groups teams and projects.
type Organization struct {
	ID        int64             `json:"id" db:"id"`
	Name      string            `json:"name" db:"name"`
	Slug      string            `json:"slug" db:"slug"`
	Flags     OrganizationFlags `json:"flags" db:"flags"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Team is a set of users inside an organization.
type Team struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	ActorID        *int64    `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Project belongs to an organization and is accessed through teams.
type Project struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

package notifications

import (
	"fmt"

	"github.com/sumire/notifysettings/internal/domain"
)

// Params identifies the owner and the object of a setting. Every field is
// optional; which ones are set decides the scope and target.
type Params struct {
	UserID         *int64
	TeamID         *int64
	ProjectID      *int64
	OrganizationID *int64
}

// ForUser returns Params targeting a user.
func ForUser(userID int64) Params {
	return Params{UserID: &userID}
}

// ForTeam returns Params targeting a team.
func ForTeam(teamID int64) Params {
	return Params{TeamID: &teamID}
}

// InProject returns a copy of p scoped to a project.
func (p Params) InProject(projectID int64) Params {
	p.ProjectID = &projectID
	return p
}

// InOrganization returns a copy of p scoped to an organization.
func (p Params) InOrganization(organizationID int64) Params {
	p.OrganizationID = &organizationID
	return p
}

// ResolveScope picks where a setting applies. A project wins over an
// organization; with neither the setting is attached to the acting user.
func ResolveScope(userID int64, projectID, organizationID *int64) domain.Scope {
	if projectID != nil {
		return domain.Scope{Type: domain.ScopeTypeProject, ID: *projectID}
	}
	if organizationID != nil {
		return domain.Scope{Type: domain.ScopeTypeOrganization, ID: *organizationID}
	}
	return domain.Scope{Type: domain.ScopeTypeUser, ID: userID}
}

// ResolveTarget picks who a setting is for. A user wins over a team.
func ResolveTarget(userID, teamID *int64) (domain.Target, error) {
	if userID != nil {
		return domain.Target{Type: domain.TargetTypeUser, ID: *userID}, nil
	}
	if teamID != nil {
		return domain.Target{Type: domain.TargetTypeTeam, ID: *teamID}, nil
	}
	return domain.Target{}, domain.ErrInvalidTarget
}

// resolveKey builds the unique row key for p.
func resolveKey(provider domain.ExternalProvider, typ domain.NotificationSettingType, p Params) (domain.SettingKey, error) {
	target, err := ResolveTarget(p.UserID, p.TeamID)
	if err != nil {
		return domain.SettingKey{}, err
	}

	// A team has no user-level scope of its own.
	if target.Type == domain.TargetTypeTeam && p.ProjectID == nil && p.OrganizationID == nil {
		return domain.SettingKey{}, fmt.Errorf("%w: team settings need a project or organization", domain.ErrInvalidTarget)
	}

	return domain.SettingKey{
		Scope:    ResolveScope(target.ID, p.ProjectID, p.OrganizationID),
		Target:   target,
		Provider: provider,
		Type:     typ,
	}, nil
}

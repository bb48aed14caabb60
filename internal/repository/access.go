package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/notifysettings/internal/domain"
)

// AccessRepository answers which organizations and projects a user can see.
type AccessRepository struct {
	db *sqlx.DB
}

// NewAccessRepository creates a new AccessRepository.
func NewAccessRepository(db *sqlx.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// OrganizationsForUser returns the organizations the user is a member of.
func (r *AccessRepository) OrganizationsForUser(ctx context.Context, userID int64) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &orgs,
		`SELECT o.id, o.name, o.slug, o.flags, o.created_at
		 FROM organizations o
		 JOIN organization_members om ON om.organization_id = o.id
		 WHERE om.user_id = $1
		 ORDER BY o.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations for user %d: %w", userID, err)
	}
	return orgs, nil
}

// ProjectsForUser returns the projects reachable through the user's teams.
func (r *AccessRepository) ProjectsForUser(ctx context.Context, userID int64) ([]domain.Project, error) {
	var projects []domain.Project
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &projects,
		`SELECT DISTINCT p.id, p.organization_id, p.name, p.created_at
		 FROM projects p
		 JOIN project_teams pt ON pt.project_id = p.id
		 JOIN team_members tm ON tm.team_id = pt.team_id
		 WHERE tm.user_id = $1
		 ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects for user %d: %w", userID, err)
	}
	return projects, nil
}

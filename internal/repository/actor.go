package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/notifysettings/internal/domain"
)

// ActorRepository links users and teams to rows of the actors table.
type ActorRepository struct {
	db *sqlx.DB
}

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(db *sqlx.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

// Create inserts a new actor of the given type.
func (r *ActorRepository) Create(ctx context.Context, actorType domain.ActorType) (*domain.Actor, error) {
	var actor domain.Actor
	err := executor(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO actors (type) VALUES ($1) RETURNING id, type`, actorType,
	).StructScan(&actor)
	if err != nil {
		return nil, fmt.Errorf("create %s actor: %w", actorType, err)
	}
	return &actor, nil
}

// Backfill creates an actor for every user or team that has none, at most
// limit rows per call. It returns the number of rows linked.
func (r *ActorRepository) Backfill(ctx context.Context, actorType domain.ActorType, limit int) (int, error) {
	table := "users"
	if actorType == domain.ActorTypeTeam {
		table = "teams"
	}

	var ids []int64
	err := sqlx.SelectContext(ctx, executor(ctx, r.db), &ids,
		`SELECT id FROM `+table+` WHERE actor_id IS NULL ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("select %s without actor: %w", table, err)
	}

	for _, id := range ids {
		actor, err := r.Create(ctx, actorType)
		if err != nil {
			return 0, err
		}
		if _, err := executor(ctx, r.db).ExecContext(ctx,
			`UPDATE `+table+` SET actor_id = $1 WHERE id = $2 AND actor_id IS NULL`, actor.ID, id); err != nil {
			return 0, fmt.Errorf("link actor %d to %s %d: %w", actor.ID, table, id, err)
		}
	}
	return len(ids), nil
}

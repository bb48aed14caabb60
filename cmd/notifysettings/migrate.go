package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumire/notifysettings/db/migrations"
	"github.com/sumire/notifysettings/internal/config"
	"github.com/sumire/notifysettings/internal/domain"
	"github.com/sumire/notifysettings/internal/migrate"
	"github.com/sumire/notifysettings/internal/repository"
)

var (
	migrateDryRun bool
	backfillBatch int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		m := migrate.New(db, migrations.Content, logger)
		if migrateDryRun {
			pending, err := m.Pending(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range pending {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		}

		applied, err := m.Up(cmd.Context())
		if err != nil {
			return err
		}
		logger.WithField("applied", len(applied)).Info("migrations complete")
		return nil
	},
}

var backfillActorsCmd = &cobra.Command{
	Use:   "backfill-actors",
	Short: "Create actors for users and teams that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillBatch <= 0 {
			return fmt.Errorf("--batch must be positive")
		}
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		txManager := repository.NewTxManager(db)
		actors := repository.NewActorRepository(db)

		for _, actorType := range []domain.ActorType{domain.ActorTypeUser, domain.ActorTypeTeam} {
			total, err := backfill(cmd.Context(), txManager, actors, actorType)
			if err != nil {
				return err
			}
			logger.WithField("type", actorType.String()).WithField("linked", total).Info("actor backfill complete")
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "List pending migrations without applying them")
	backfillActorsCmd.Flags().IntVar(&backfillBatch, "batch", 500, "Rows linked per transaction")
}

// backfill links actors one batch per transaction until none are left.
func backfill(ctx context.Context, tx *repository.TxManager, actors *repository.ActorRepository, actorType domain.ActorType) (int, error) {
	total := 0
	for {
		var n int
		err := tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			n, err = actors.Backfill(ctx, actorType, backfillBatch)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("backfill %s actors: %w", actorType, err)
		}
		total += n
		if n < backfillBatch {
			return total, nil
		}
	}
}

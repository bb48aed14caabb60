package main

import (
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sumire/notifysettings/internal/config"
	"github.com/sumire/notifysettings/internal/logging"
)

const serviceName = "notifysettings"

var logger = logging.NewLoggerWithService(serviceName, logrus.InfoLevel)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Notification settings service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv(logger)
		if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
			logger.Logger.SetLevel(lvl)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, backfillActorsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("application error")
		os.Exit(1)
	}
}

func openDB(cfg config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	logger.Info("database connected")
	return db, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"askia-quiz-service/internal/config"
	"askia-quiz-service/internal/infra/postgres"
	pgmigrations "askia-quiz-service/internal/infra/postgres/migrations"
	"askia-quiz-service/internal/logger"
)

// NewMigrateCmd applies database migrations and optionally publishes a content tree.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seedDir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New("quiz-service", cfg.Log.Level)
			if err := runMigrationsWithConfig(cmd.Context(), cfg, log); err != nil {
				return err
			}
			if seedDir == "" {
				return nil
			}
			return seedContent(cmd.Context(), cfg, seedDir, log)
		},
	}
	cmd.Flags().StringVar(&seedDir, "seed-dir", "", "content directory to publish into the content table")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations applied")
	return nil
}

// seedContent publishes every JSON file under dir keyed by its slash-separated relative path.
func seedContent(ctx context.Context, cfg config.Config, dir string, log logrus.FieldLogger) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	source := postgres.NewContentSource(pool)

	published := 0
	err = fs.WalkDir(os.DirFS(dir), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		if err != nil {
			return err
		}
		if err := source.Publish(ctx, path, data); err != nil {
			return err
		}
		published++
		return nil
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"dir": dir, "files": published}).Info("content published")
	return nil
}

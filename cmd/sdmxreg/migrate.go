package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sdmxkit/sdmxreg/internal/cli/config"
	"github.com/sdmxkit/sdmxreg/internal/cli/ui"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/artefacts"
	"github.com/sdmxkit/sdmxreg/internal/store/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the registry schema",
	Long:  "Apply the registry's table definitions. The statements are idempotent; running migrate on an existing database is safe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		for _, stmt := range artefacts.DDL(cfg.Database.Driver) {
			if _, err := db.ExecContext(cmd.Context(), stmt); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
		}

		ui.Successf(os.Stdout, "schema is up to date (%s)", cfg.Database.Driver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed AGENCY_ID...",
	Short: "Register maintenance agencies",
	Long:  "Create the given agencies so artefacts maintained by them can be submitted.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		sdb := sqlstore.New(db, artefacts.NewSchema(), nil)
		session, err := sdb.Session(ctx)
		if err != nil {
			return err
		}

		for _, agencyID := range args {
			_, created, err := session.GetOrCreate(ctx, "organisation.Organisation",
				map[string]interface{}{"object_id": agencyID}, nil)
			if err != nil {
				session.Rollback()
				return fmt.Errorf("seeding agency %s failed: %w", agencyID, err)
			}
			if created {
				ui.Successf(os.Stdout, "registered agency %s", agencyID)
			} else {
				ui.Infof(os.Stdout, "agency %s already registered", agencyID)
			}
		}
		return session.Commit()
	},
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

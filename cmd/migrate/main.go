package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/database"
)

var (
	dsn           string
	migrationsDir string
	rollback      bool
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the postgres schema migrations",
	Long: `Applies every pending migrations/*.sql file in name order and records it in
the migrations table. With --rollback the most recently applied migration is
undone using its <name>_rollback.sql file.

The connection string comes from --dsn, DATABASE_URL, or the DB_* settings.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, db *sql.DB) error {
			if rollback {
				return rollbackLast(ctx, cmd, db)
			}
			return migrateUp(ctx, cmd, db)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(ctx context.Context, db *sql.DB) error {
			files, err := database.MigrationFiles(migrationsDir)
			if err != nil {
				return err
			}
			for _, file := range files {
				applied, err := isApplied(ctx, db, file)
				if err != nil {
					return err
				}
				state := "pending"
				if applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, file)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "migrations directory (default from MIGRATIONS_DIR)")
	rootCmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last applied migration")
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *sql.DB) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = cfg.DSN()
	}
	if migrationsDir == "" {
		migrationsDir = cfg.MigrationsDir
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return fn(ctx, db)
}

func isApplied(ctx context.Context, db *sql.DB, file string) (bool, error) {
	var applied bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM migrations WHERE name = $1)", file).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return applied, nil
}

func migrateUp(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
	files, err := database.MigrationFiles(migrationsDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, file := range files {
		applied, err := isApplied(ctx, db, file)
		if err != nil {
			return err
		}
		if applied {
			fmt.Fprintf(out, "Migration already applied: %s\n", file)
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsDir, file))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", file, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (name) VALUES ($1)", file); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Successfully applied migration: %s\n", file)
	}

	fmt.Fprintln(out, "All migrations applied successfully.")
	return nil
}

func rollbackLast(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
	var last string
	err := db.QueryRowContext(ctx, "SELECT name FROM migrations ORDER BY applied_at DESC, id DESC LIMIT 1").Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("no migrations to roll back")
	}
	if err != nil {
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	path := filepath.Join(migrationsDir, database.RollbackFile(last))
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rollback file: %w", err)
	}

	err = inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute rollback: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM migrations WHERE name = $1", last); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully rolled back migration: %s\n", last)
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

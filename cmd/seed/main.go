package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/database"
	"github.com/pageza/cookbook/backend/internal/logging"
	"github.com/pageza/cookbook/backend/internal/seed"
	"github.com/pageza/cookbook/backend/internal/service"
)

var (
	catalogFile string
	password    string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create development users and the starter ingredient catalog",
	Long: `Creates the development accounts and catalog ingredients that do not exist
yet. Existing users and ingredients are left untouched, so the command can be
run repeatedly. Refuses to run in production.`,
	SilenceUsage: true,
	RunE:         runSeed,
}

func init() {
	rootCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "YAML catalog to load instead of the bundled one")
	rootCmd.Flags().StringVar(&password, "password", "testpassword123", "password of every seeded account")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Env.IsProduction() {
		return fmt.Errorf("refusing to seed a %s database", cfg.Env)
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Env, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(db, cfg.MigrationsDir, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	seeder := seed.NewSeeder(
		service.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, log),
		service.NewIngredientService(db, nil, log),
		log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := seeder.Run(ctx, catalog, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Users: %d created, %d already present\n", result.UsersCreated, result.UsersSkipped)
	fmt.Fprintf(out, "Ingredients: %d created, %d already present\n", result.IngredientsCreated, result.IngredientsSkipped)
	return nil
}

func loadCatalog() (*seed.Catalog, error) {
	if catalogFile == "" {
		return seed.DefaultCatalog()
	}
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return seed.Parse(data)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/database"
	"github.com/pageza/cookbook/backend/internal/logging"
	"github.com/pageza/cookbook/backend/internal/service"
)

var (
	baseURL  string
	query    string
	limit    int
	dryRun   bool
	noImages bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "import_mealdb",
	Short: "Import public recipes from TheMealDB",
	Long: `Fetches meals from TheMealDB search endpoint and stores them as public
recipes authored by the "themealdb" account. Unknown ingredients are added to
the catalog with zero nutrition. Recipes whose name already exists are skipped.

Example:
  import_mealdb --query chicken --limit 10 --dry-run`,
	SilenceUsage: true,
	RunE:         runImport,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove imported recipes, unused imported ingredients and the import account",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&baseURL, "url", "", "TheMealDB API base URL (default from MEALDB_URL)")
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "search term; empty imports the first page of meals")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of recipes to create (0 for all)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the recipes that would be created without writing")
	rootCmd.Flags().BoolVar(&noImages, "no-images", false, "keep remote thumbnail URLs instead of storing images")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	ctx := cmdContext(cmd)
	importer, log, err := newImporter(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	result, err := importer.Import(ctx, query, limit, dryRun)
	if err != nil {
		return err
	}

	log.Info("Import finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	for _, name := range result.Recipes {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	importer, log, err := newImporter(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	result, err := importer.Cleanup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d recipes and %d ingredients\n", result.Recipes, result.Ingredients)
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newImporter loads the configuration and wires the importer against the configured database.
func newImporter(ctx context.Context) (*service.MealDBImporter, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if baseURL == "" {
		baseURL = cfg.MealDBURL
	}

	log, err := logging.New(cfg.Env, verbose)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(db, cfg.MigrationsDir, log); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var images *service.ImageService
	if !noImages {
		store, err := service.NewImageStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		images = service.NewImageService(store, log)
	}

	importer := service.NewMealDBImporter(db, baseURL,
		service.NewIngredientService(db, nil, log),
		service.NewRecipeService(db, images, log),
		images, log)
	return importer, log, nil
}

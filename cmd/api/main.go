package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/api"
	"github.com/pageza/cookbook/backend/internal/database"
	"github.com/pageza/cookbook/backend/internal/logging"
	"github.com/pageza/cookbook/backend/internal/server"
	"github.com/pageza/cookbook/backend/internal/service"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Cookbook HTTP API",
	Long: `Serves the cookbook API: accounts, the ingredient catalog,
recipes with nutrition summaries and serving scaling, and the contact form.

Runs "serve" when no subcommand is given.`,
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
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

	// redis backs the search cache and the rate limits; both degrade without it
	var rdb *redis.Client
	if client, err := database.NewRedisClient(cfg, log); err != nil {
		log.Warn("Redis unavailable, using in-process rate limits and no cache", zap.Error(err))
	} else {
		rdb = client
		defer rdb.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := service.NewImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	images := service.NewImageService(store, log)
	contact := service.NewContactService(db, service.NewEmailService(cfg, log), log)

	srv := server.New(api.Deps{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Auth:        service.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, log),
		Ingredients: service.NewIngredientService(db, rdb, log),
		Recipes:     service.NewRecipeService(db, images, log),
		Contact:     contact,
		Log:         log,
	}, contact.Wait)

	return srv.Run(ctx)
}

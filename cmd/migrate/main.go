package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/deskpilot/support-triage/internal/app"
	"github.com/deskpilot/support-triage/internal/config"
	"github.com/deskpilot/support-triage/internal/patternfile"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/repository/postgres"
	"github.com/deskpilot/support-triage/internal/service/settings"
)

// migrate applies the schema, seeds settings that have no row yet and
// optionally imports a pattern file.
//
//	migrate [--list] [--patterns patterns.yaml]
func main() {
	defer logger.Sync()

	listOnly := false
	patternsPath := ""
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--list":
			listOnly = true
		case "--patterns":
			if i+1 >= len(args) {
				fatal("--patterns needs a file")
			}
			i++
			patternsPath = args[i]
		default:
			fatal("unknown argument", "arg", args[i])
		}
	}

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		fatal("load config", "error", err)
	}
	app.ConfigureLogging(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := app.OpenDB(ctx, cfg.Database)
	if err != nil {
		fatal("connect", "error", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	if listOnly {
		repo := postgres.NewSettingsRepo(db)
		stored := 0
		for _, k := range settings.Keys() {
			v, err := repo.Get(ctx, k)
			switch {
			case errors.Is(err, settings.ErrNotFound):
				fmt.Printf("  %-28s (default)\n", k)
			case err != nil:
				fatal("read setting", "key", k, "error", err)
			default:
				fmt.Printf("  %-28s %s\n", k, v)
				stored++
			}
		}
		fmt.Printf("Total: %d stored, %d default\n", stored, len(settings.Keys())-stored)
		return
	}

	n, err := postgres.Migrate(ctx, db)
	if err != nil {
		fatal("migrate", "error", err)
	}
	logger.Info("schema applied", "statements", n)

	seeded, err := settings.NewStore(postgres.NewSettingsRepo(db), cfg.Triage.Fallback()).Seed(ctx)
	if err != nil {
		fatal("seed settings", "error", err)
	}
	logger.Info("settings seeded", "inserted", seeded)

	if patternsPath == "" {
		return
	}
	patterns, err := patternfile.Load(patternsPath)
	if err != nil {
		fatal("load patterns", "error", err)
	}
	repo := postgres.NewPatternRepo(db)
	for _, p := range patterns {
		p.CreatedBy = "migrate"
		if err := repo.Create(ctx, p); err != nil {
			fatal("import pattern", "name", p.Name, "error", err)
		}
	}
	logger.Info("patterns imported", "count", len(patterns), "file", patternsPath)
}

func fatal(msg string, kv ...interface{}) {
	logger.Error(msg, kv...)
	logger.Sync()
	os.Exit(1)
}

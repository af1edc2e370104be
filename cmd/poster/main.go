package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/availability"
	"vacancy-watch/poster/internal/config"
	"vacancy-watch/poster/internal/database"
	importlistings "vacancy-watch/poster/internal/import"
	"vacancy-watch/poster/internal/process"
	"vacancy-watch/poster/internal/publisher"
	"vacancy-watch/poster/internal/scraper"
	"vacancy-watch/poster/internal/selector"
	"vacancy-watch/poster/internal/server"
	"vacancy-watch/poster/internal/store"
	"vacancy-watch/poster/internal/summarizer"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

const usage = `Usage: poster [command] [options]
Commands: start, server, import, migrate

For command-specific options, use: poster [command] -h`

func main() {
	config.LoadDotEnv()
	cfg := config.DefaultConfig()

	var logLevelStr string
	commonFlags := func(fs *flag.FlagSet) {
		fs.StringVar(&logLevelStr, "log-level", cfg.LogLevel.String(),
			"Log level: debug, info, warn, error (env: POSTER_LOG_LEVEL)")
		fs.StringVar(&cfg.DBPath, "db", cfg.DBPath,
			"Path to the SQLite database file (env: POSTER_DB_PATH)")
	}

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	commonFlags(startCmd)
	startCmd.DurationVar(&cfg.Interval, "interval", cfg.Interval,
		"Delay between posting cycles (env: POSTER_INTERVAL)")
	startCmd.BoolVar(&cfg.TestMode, "test", cfg.TestMode,
		"Ignore the posting window and use the short cooldown (env: TG_TEST_MODE)")
	startCmd.StringVar(&cfg.SourceKind, "source", cfg.SourceKind,
		"Listing source: html or feed (env: POSTER_SOURCE_KIND)")
	startCmd.StringVar(&cfg.SourceURL, "source-url", cfg.SourceURL,
		"Listing page or feed URL (env: POSTER_SOURCE_URL)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	commonFlags(serverCmd)
	serverCmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
		"Host to bind the server to (env: POSTER_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
		"Port to listen on (env: POSTER_PORT)")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	commonFlags(importCmd)
	importCmd.StringVar(&cfg.ListingsCSV, "csv", cfg.ListingsCSV,
		"Path or URL of the listings CSV (env: POSTER_CSV_PATH)")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	commonFlags(migrateCmd)
	var rollbackSteps int
	migrateCmd.IntVar(&rollbackSteps, "down", 0,
		"Roll back this many migrations after applying pending ones")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var (
		run func(context.Context, *config.Config) error
		fs  *flag.FlagSet
	)
	switch os.Args[1] {
	case "start":
		run, fs = runStart, startCmd
	case "server":
		run, fs = runServer, serverCmd
	case "import":
		run, fs = runImport, importCmd
	case "migrate":
		run = func(ctx context.Context, cfg *config.Config) error {
			return runMigrate(cfg, rollbackSteps)
		}
		fs = migrateCmd
	case "-h", "--help", "help":
		fmt.Println(usage)
		os.Exit(0)
	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}

	fs.Parse(os.Args[2:])
	if level, err := zerolog.ParseLevel(logLevelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

// runStart runs the posting loop until a shutdown signal arrives.
func runStart(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidatePosting(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	window := selector.AlwaysOpen()
	if !cfg.TestMode {
		if window, err = selector.ParseWindow(cfg.Window, loc); err != nil {
			return errors.Wrap(err, "invalid posting window")
		}
	}

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	listings := store.New(db)

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	checker := availability.NewChecker(availability.Config{
		Phrases:         cfg.Phrases,
		ProbesPerSecond: cfg.ProbeRPS,
	})

	poster, err := process.NewPoster(
		source,
		listings,
		selector.New(checker, listings, window, cfg.EffectiveCooldown()),
		scraper.NewDescriptions(nil),
		summarizer.New(summarizer.Config{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}),
		publisher.NewTelegram(publisher.TelegramConfig{
			Token:   cfg.BotToken,
			ChatID:  cfg.ChatID,
			BaseURL: cfg.TelegramURL,
		}),
		process.Options{
			Retention:     cfg.Retention,
			Interval:      cfg.Interval,
			RecoveryDelay: cfg.RecoveryDelay,
			ImagePath:     cfg.ImagePath,
			Tips: process.TipOptions{
				Schedule:  cfg.TipSchedule,
				Location:  loc,
				ImagePath: cfg.TipImagePath,
				Window:    window,
				TestMode:  cfg.TestMode,
			},
		},
	)
	if err != nil {
		return err
	}

	log.Info().
		Bool("test_mode", cfg.TestMode).
		Str("window", window.String()).
		Dur("cooldown", cfg.EffectiveCooldown()).
		Dur("interval", cfg.Interval).
		Str("source", cfg.SourceURL).
		Msg("Starting poster")

	return poster.Run(ctx)
}

func newSource(cfg *config.Config) (process.Source, error) {
	switch cfg.SourceKind {
	case "html":
		return scraper.NewWorkUA(cfg.SourceURL, nil)
	case "feed":
		return scraper.NewFeed(cfg.SourceURL), nil
	case "none":
		log.Warn().Msg("No listing source configured, posting the stored backlog only")
		return nil, nil
	default:
		return nil, errors.Newf("unknown source kind %q", cfg.SourceKind)
	}
}

// runServer serves the read-only listing API.
func runServer(ctx context.Context, cfg *config.Config) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = true

	db, err := database.NewDB(dbCfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	return server.RunServer(ctx, db, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}

// runImport adds listings from a CSV file or URL to the store. Links already
// stored are skipped.
func runImport(ctx context.Context, cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	summary, err := importlistings.NewImporter(store.New(db)).ImportListings(ctx, cfg.ListingsCSV)
	if err != nil {
		return err
	}
	for _, msg := range summary.Errors {
		log.Warn().Str("source", cfg.ListingsCSV).Msg(msg)
	}
	log.Info().
		Int("rows", summary.Rows).
		Int("inserted", summary.Inserted).
		Int("skipped", summary.Skipped).
		Msg("Import finished")
	return nil
}

// runMigrate applies pending migrations and optionally rolls back the last
// steps of them.
func runMigrate(cfg *config.Config, steps int) error {
	if steps < 0 {
		return errors.Newf("-down must not be negative, got %d", steps)
	}
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	if steps == 0 {
		return nil
	}
	if err := db.Rollback(steps); err != nil {
		return err
	}
	log.Info().Int("steps", steps).Str("path", cfg.DBPath).Msg("Rolled back migrations")
	return nil
}

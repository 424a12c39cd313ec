package main

import (
	"context"
	"fmt"
	logByDefault "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/crawler"
	"github.com/mwaltman/guild-archiver/internal/discord"
	"github.com/mwaltman/guild-archiver/internal/httpclient"
	log "github.com/mwaltman/guild-archiver/internal/log"
	"github.com/mwaltman/guild-archiver/internal/metrics"
	"github.com/mwaltman/guild-archiver/internal/mirror"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/notify"
	"github.com/mwaltman/guild-archiver/internal/repost"
	"github.com/mwaltman/guild-archiver/internal/server"
	storage "github.com/mwaltman/guild-archiver/internal/storage"

	// This controls the maxprocs environment variable in container runtimes.
	// see https://martin.baillie.id/wrote/gotchas-in-the-go-network-packages-defaults/#bonus-gomaxprocs-containers-and-the-cfs
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	// Set the local timezone to UTC
	time.Local = time.UTC

	// Initialize the configuration
	config, err := config.MustLoadConfig()
	if err != nil {
		logByDefault.Fatalf("Config load error: %v", err)
	}

	// Logger configuration
	logger := log.New(
		log.WithLevel(config.Verbose),
		log.WithSource(),
	)

	if err := run(config, logger); err != nil {
		logger.ErrorContext(context.Background(), "an error occurred", slog.String("error", err.Error()))
		os.Exit(1)
	}

	os.Exit(0)
}

func run(config *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err := maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		logger.DebugContext(ctx, fmt.Sprintf(s, i...))
	}))
	if err != nil {
		return fmt.Errorf("setting max procs: %w", err)
	}

	// Setup hash function
	model.InitHashFunction()

	// Setup database connection
	db, err := storage.New(config, logger)
	if err != nil {
		return fmt.Errorf("database connection error: %w", err)
	}
	defer db.Close()

	// Metrics sink, the fake when no InfluxDB is configured
	var m metrics.Metrics
	if config.Influx.URL != "" {
		m = metrics.NewMetricsImpl(
			config.Influx.URL,
			config.Influx.Token,
			config.Influx.Org,
			config.Influx.Bucket,
			map[string]string{"environment": config.Environment},
		)
	} else {
		m = metrics.NewMetricsFake()
	}
	defer m.Close()

	// Reconcile the game master seed list before anything can repost
	if err := db.SeedGameMasters(ctx, config.Discord.GameMasters, config.Discord.GameMasterNames); err != nil {
		return fmt.Errorf("seeding game masters: %w", err)
	}

	// Setup the gateway session and capture pipeline
	bot, err := discord.New(db, config, logger, m)
	if err != nil {
		return fmt.Errorf("discord setup error: %w", err)
	}
	if err := bot.Start(); err != nil {
		return fmt.Errorf("discord gateway error: %w", err)
	}
	defer bot.Stop()

	// Mirror topology for GM reposts
	mirrorGuild := config.Discord.MirrorGuildID
	var mirrors *mirror.Manager
	if mirrorGuild != "" {
		mirrors, err = mirror.New(db, bot.Client(), mirrorGuild, logger)
		if err != nil {
			return fmt.Errorf("mirror manager error: %w", err)
		}
		defer mirrors.Close()
	}

	// Optional SOCKS5 proxy for the viewer notifications
	httpClient, err := httpclient.NewHttpSocks5Client(&config.Proxy)
	if err != nil {
		return fmt.Errorf("http client error: %w", err)
	}
	notifier := notify.New(&config.Viewer, httpClient, db, logger)

	// Historical crawler
	crawl := crawler.New(db, bot.Client(), config, logger, m)
	go crawl.Run(ctx)

	// Repost dispatcher; mirrors stay nil when no mirror guild is configured
	var dispatcherMirrors repost.Mirrors
	if mirrors != nil {
		dispatcherMirrors = mirrors
	}
	dispatcher := repost.New(db, bot.Client(), dispatcherMirrors, notifier, config, logger, m)
	go dispatcher.Run(ctx)

	// Operational HTTP surface
	srv := server.New(config, logger)
	srv.AddHealthCheck(func() (bool, map[string]string) {
		status := make(map[string]string)
		healthy := true
		for name, fn := range map[string]func() (string, error){
			"database": db.Status,
			"server":   srv.Status,
		} {
			s, err := fn()
			status[name] = s
			if err != nil {
				healthy = false
			}
		}
		return healthy, status
	})
	srv.AddArchiveRoutes(db, config.Discord.SourceGuildID)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	logger.InfoContext(ctx, "archiver started",
		slog.String("guild", config.Discord.SourceGuildID),
		slog.String("host", config.API.Host),
		slog.Int("port", config.API.Port),
	)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("api server error: %w", err)
	}

	// Shutdown: stop taking requests, then the deferred closers run in
	// reverse order, the database pool last.
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WarnContext(ctx, "server shutdown error", slog.String("error", err.Error()))
	}

	logger.InfoContext(ctx, "archiver stopped")

	return nil
}

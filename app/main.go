package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lysyi3m/rss-reader/app/api"
	"github.com/lysyi3m/rss-reader/app/cfg"
	"github.com/lysyi3m/rss-reader/app/feed"
	"github.com/lysyi3m/rss-reader/app/repository"
	"github.com/lysyi3m/rss-reader/app/storage"
	"github.com/lysyi3m/rss-reader/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	closeLog := setupLogger(appConfig)
	defer closeLog()

	slog.Info("Starting RSS Reader server", "version", appConfig.Version, "driver", appConfig.DBDriver)

	db, err := storage.Open(appConfig.DBDriver, appConfig.DBDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := storage.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	store := storage.NewSQLStore(db, appConfig.Namespace)
	fetcher := feed.NewHTTPFetcher(nil, appConfig.UserAgent, appConfig.FetchTimeoutDuration())
	repo := repository.NewFeedRepository(store, fetcher, feed.NewParser())

	stats := repo.Stats()
	slog.Info("Loaded stored state", "feeds", stats.Feeds, "items", stats.Items, "unread", stats.Unread)

	if appConfig.SubscriptionsFile != "" {
		importSubscriptions(repo, appConfig)
	}

	slog.Info("Starting background scheduler", "workers", appConfig.WorkerCount, "interval", appConfig.RefreshEvery().String())
	scheduler := tasks.NewScheduler(repo, fetcher, feed.NewContentExtractor(), tasks.Options{
		WorkerCount:    appConfig.WorkerCount,
		Interval:       appConfig.RefreshEvery(),
		ExtractContent: appConfig.ExtractContent,
		FetchTimeout:   appConfig.FetchTimeoutDuration(),
	})
	scheduler.Start()
	defer scheduler.Stop()

	generator := feed.NewGenerator(appConfig.BaseUrl, appConfig.Version)
	handler := api.NewHandler(repo, generator, scheduler, appConfig.Version)
	server := api.NewServer(handler, appConfig.APIAccessKey)

	// No WriteTimeout: /api/stream keeps connections open.
	httpServer := api.NewHTTPServer(":"+appConfig.Port, server)

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port, "api_auth", appConfig.APIAccessKey != "")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("RSS Reader server shutdown complete")
}

func setupLogger(appConfig *cfg.Cfg) func() {
	level := slog.LevelInfo
	if appConfig.Debug {
		level = slog.LevelDebug
	}

	var output io.Writer = os.Stderr
	closeLog := func() {}

	if appConfig.LogFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   appConfig.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		output = io.MultiWriter(os.Stderr, fileWriter)
		closeLog = func() { _ = fileWriter.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})))
	return closeLog
}

// importSubscriptions adds feeds listed in the subscriptions file that are
// not already stored. Existing feeds are left as they are.
func importSubscriptions(repo *repository.FeedRepository, appConfig *cfg.Cfg) {
	subs, err := feed.NewSubscriptionsFile(appConfig.SubscriptionsFile).Load()
	if err != nil {
		slog.Error("Failed to load subscriptions", "path", appConfig.SubscriptionsFile, "error", err)
		return
	}

	known := make(map[string]bool)
	for _, f := range repo.Feeds() {
		known[f.URL] = true
	}

	imported := 0
	for _, sub := range subs {
		if known[sub.URL] {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), appConfig.FetchTimeoutDuration()+5*time.Second)
		added, ok := repo.AddFeed(ctx, sub.URL, sub.Title)
		cancel()
		if !ok {
			slog.Warn("Failed to import subscription", "url", sub.URL)
			continue
		}

		if !sub.IsActive() {
			inactive := false
			repo.UpdateFeed(added.ID, feed.FeedUpdate{IsActive: &inactive})
		}

		known[sub.URL] = true
		imported++
		slog.Info("Imported subscription", "feed", added.ID, "title", added.Title, "url", sub.URL)
	}

	slog.Info("Subscriptions processed", "listed", len(subs), "imported", imported)
}

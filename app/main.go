package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerpress/app/api"
	"peerpress/app/cfg"
	"peerpress/app/database"
	"peerpress/app/feed"
	"peerpress/app/protocol"
	"peerpress/app/subscriptions"
	"peerpress/app/tasks"
)

const (
	requestTimeout = 20 * time.Second
	maxRedirects   = 5
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting server", "version", c.Version, "base_url", c.BaseUrl)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	friendRepo := database.NewFriendRepository(db)
	subRepo := database.NewSubscriptionRepository(db)
	postRepo := database.NewPostRepository(db)
	reactionRepo := database.NewReactionRepository(db)
	ruleRepo := database.NewRuleRepository(db)
	tokenRepo := database.NewTokenRepository(db)
	localPostRepo := database.NewLocalPostRepository(db)

	httpClient := &http.Client{
		Timeout: requestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	registry := feed.NewRegistry(
		feed.NewSyndicationParser(httpClient, c.UserAgent),
		feed.NewJSONFeedParser(httpClient, c.UserAgent),
		feed.NewMicroformatsParser(httpClient, c.UserAgent),
	)
	discovery := feed.NewDiscovery(httpClient, registry, c.UserAgent)
	reconciler := feed.NewReconciler(postRepo, reactionRepo, ruleRepo, friendRepo, feed.NewLogNotifier())
	extractor := feed.NewContentExtractor()

	seedLoader := subscriptions.NewLoader(c.FeedsDir, friendRepo, subRepo, registry)
	if err := seedLoader.Run(); err != nil {
		slog.Error("Failed to load subscription seeds", "error", err)
		os.Exit(1)
	}

	scheduler := tasks.NewScheduler(friendRepo, subRepo, postRepo, tokenRepo, registry, reconciler, extractor, httpClient)
	scheduler.Start()
	defer scheduler.Stop()

	client := protocol.NewClient(httpClient, c.UserAgent)
	handshake := protocol.NewHandshake(friendRepo, subRepo, postRepo, tokenRepo, discovery, client)
	handshake.OnNewFriend(scheduler.RefreshFriend)
	indieauth := protocol.NewIndieAuth(friendRepo, tokenRepo, httpClient)

	handler := api.NewHandler(friendRepo, subRepo, postRepo, localPostRepo, ruleRepo, reactionRepo,
		handshake, indieauth, discovery, scheduler)
	server := api.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
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

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

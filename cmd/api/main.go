package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"innomatch/api/internal/app"
	"innomatch/api/internal/attachments"
	"innomatch/api/internal/config"
	"innomatch/api/internal/email"
	"innomatch/api/internal/export"
	"innomatch/api/internal/logging"
	"innomatch/api/internal/metrics"
	"innomatch/api/internal/search"
	"innomatch/api/internal/session"
	"innomatch/api/internal/store"
)

type sessionBackend interface {
	app.SessionStore
	Close() error
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	ctx := context.Background()

	dataStore, err := store.Open(ctx, cfg)
	if err != nil {
		logging.Fatal("store connection failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer dataStore.Close()

	collectors := metrics.New()

	var sessions sessionBackend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		slog.Info("using redis for revocation and view counters")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logging.Fatal("redis connection failed", "error", err)
		}
		sessions = redisStore
	} else {
		slog.Info("using in-process revocation and view counters")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	var fallbacks []search.Searcher
	if pg, ok := dataStore.(*store.PostgresStore); ok {
		fallbacks = append(fallbacks, search.NewPgFTS(pg.DB()))
	}
	fallbacks = append(fallbacks, &search.Scan{Store: dataStore})
	var searchService *search.Service
	if meiliClient != nil {
		searchService = search.NewService(meiliClient, fallbacks...)
	} else {
		searchService = search.NewService(nil, fallbacks...)
	}
	defer searchService.Close()

	var uploads *attachments.Service
	signer, err := attachments.Open(ctx, cfg)
	if err != nil {
		slog.Warn("attachments disabled", "driver", cfg.BlobDriver, "error", err)
	} else {
		uploads = attachments.NewService(signer, cfg.UploadURLTTL)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		slog.Info("smtp not configured, decision emails disabled")
	}

	service := app.New(cfg, app.Deps{
		Store:       dataStore,
		Metrics:     collectors,
		Sessions:    sessions,
		Search:      searchService,
		Attachments: uploads,
		Mailer:      mailer,
		Exporter:    export.NewService(cfg.SMTPFromName),
	})
	if meiliClient != nil {
		if err := service.ReindexSearch(ctx); err != nil {
			slog.Warn("search reindex failed (will retry on next restart)", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())
	mux.Handle("/", app.NewHTTPServer(service, cfg.CORSOrigin).Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("innovation portal API listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

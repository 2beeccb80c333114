package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gameshop/internal/config"
	"gameshop/internal/dashboard"
	"gameshop/internal/db"
	"gameshop/internal/docstore"
	"gameshop/internal/http/handlers"
	"gameshop/internal/http/middleware"
	"gameshop/internal/integrations"
	"gameshop/internal/logging"
	"gameshop/internal/repository"
	"gameshop/internal/shop"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With(zap.String("service", "api"))

	ctx := context.Background()
	backend, closeBackend, err := openBackend(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store_error", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		os.Exit(1)
	}
	defer closeBackend()

	store := docstore.New(backend, docstore.Options{
		TTL:         cfg.Store.CacheTTL,
		MaxAttempts: cfg.Store.MaxAttempts,
		Logger:      logger.Named("docstore"),
	})
	repo := repository.New(store, cfg.Store.Bins, logger.Named("repository"))

	// A bot that cannot be reached leaves the shop usable without notifications.
	var sender integrations.MessageSender
	telegram, err := integrations.NewTelegramClient(cfg.TelegramToken, cfg.TelegramAPI, nil)
	if err != nil {
		logger.Warn("telegram_unavailable", zap.Error(err))
	} else {
		sender = telegram
		logger.Info("telegram_ready", zap.String("bot", telegram.Username()))
	}
	if cfg.AdminChatID == 0 {
		logger.Warn("admin_chat_missing")
	}
	notifier := integrations.NewNotifier(sender, cfg.AdminChatID)

	var media handlers.MediaStore
	if cfg.S3.Bucket != "" {
		s3Client, err := integrations.NewS3(ctx, cfg.S3)
		if err != nil {
			logger.Error("s3_error", zap.Error(err))
			os.Exit(1)
		}
		media = s3Client
	}

	svc := shop.New(repo, notifier, sender, shop.Options{
		MaxFailedAttempts: cfg.Shop.MaxFailedAttempts,
		BroadcastDelay:    cfg.Shop.BroadcastDelay,
		Logger:            logger.Named("shop"),
	})

	refresher := dashboard.NewRefresher(repo, logger.Named("dashboard"))
	if err := refresher.Start(cfg.Shop.DashboardSchedule); err != nil {
		logger.Error("dashboard_schedule_error", zap.Error(err))
		os.Exit(1)
	}

	h := handlers.New(repo, svc, media, refresher, cfg, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(corsMiddleware)
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", zap.Error(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	refresher.Stop()
	svc.Close()
}

// openBackend connects the configured document backend. The returned func
// releases its connections.
func openBackend(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (docstore.Backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := docstore.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	case config.DriverMongo:
		client, err := docstore.ConnectMongo(ctx, cfg.MongoURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return docstore.NewMongo(client, cfg.MongoDatabase), closeFn, nil
	case config.DriverMemory:
		logger.Warn("memory_store_in_use")
		return docstore.NewMemory(), func() {}, nil
	default:
		return docstore.NewJSONBin(docstore.JSONBinConfig{
			BaseURL:    cfg.JSONBinBaseURL,
			APIKey:     cfg.JSONBinAPIKey,
			Versioning: cfg.Versioning,
		}), func() {}, nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

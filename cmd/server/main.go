package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gallerybot/internal/bot"
	"gallerybot/internal/cache"
	"gallerybot/internal/config"
	"gallerybot/internal/errlog"
	"gallerybot/internal/httpapi"
	"gallerybot/internal/service"
	"gallerybot/internal/store"
	"gallerybot/internal/store/filedoc"
	"gallerybot/internal/store/postgres"
	"gallerybot/internal/telegram"

	"github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	st, err := store.Open(ctx, backend, store.Options{Shards: cfg.StoreShards, Logger: logger})
	if err != nil {
		return err
	}

	errs, err := openErrorLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer errs.Close()

	tg, err := telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken, &http.Client{Timeout: 60 * time.Second})
	if err != nil {
		return err
	}

	files, err := openCache(ctx, cfg, tg, logger)
	if err != nil {
		return err
	}

	adminSvc := &service.AdminService{Store: st, Errors: errs, Logger: logger}
	b, err := bot.New(bot.Options{
		Messenger: tg,
		Identity:  &service.IdentityService{Store: st},
		Friends:   &service.FriendsService{Store: st},
		Gallery: &service.GalleryService{
			Store:       st,
			Cache:       files,
			Errors:      errs,
			Logger:      logger,
			ExportDelay: cfg.ExportDelay,
		},
		Chat:     &service.ChatService{Store: st},
		Admin:    adminSvc,
		AdminIDs: cfg.AdminIDs,
		Shards:   cfg.StoreShards,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	opts := httpapi.RouterOpts{
		Logger:       logger,
		IsProd:       cfg.IsProd(),
		DBPing:       st.Ping,
		Admin:        adminSvc,
		AdminKeyHash: cfg.AdminKeyHash,
	}
	if cfg.AdminKeyHash == "" {
		logger.Info("admin api disabled: set APP_ADMIN_API_KEY_HASH to enable")
	}

	var poller *telegram.Poller
	if cfg.Webhook() {
		opts.WebhookSecret = cfg.WebhookSecret
		opts.Updates = func(ctx context.Context, u telegram.Update) {
			ev, ok := telegram.ToEvent(u)
			if !ok {
				return
			}
			// Telegram retries unacknowledged updates, so the handler
			// must outlive the request.
			go b.Handle(context.WithoutCancel(ctx), ev)
		}
		if err := tg.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		logger.Info("telegram webhook registered", "url", cfg.WebhookURL)
	} else {
		if err := tg.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		poller = &telegram.Poller{Client: tg, Handler: b.Handle, Logger: logger}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "telegram_mode", cfg.TelegramMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	pollerDone := make(chan struct{})
	if poller != nil {
		go func() {
			defer close(pollerDone)
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("poller: %w", err)
			}
		}()
	} else {
		close(pollerDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		logger.Warn("poller did not stop in time")
	}
	return runErr
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, func(), error) {
	if cfg.DBDSN == "" {
		logger.Info("document store: file", "path", cfg.DataFile)
		return filedoc.New(cfg.DataFile), func() {}, nil
	}

	pool, err := postgres.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	backend := postgres.NewDocumentBackend(pool, "")
	if err := backend.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("document store: postgres")
	return backend, pool.Close, nil
}

func openErrorLog(ctx context.Context, cfg config.Config, logger *slog.Logger) (errlog.Log, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("error log: sqlite", "path", cfg.LogsDB, "limit", cfg.ErrorLogLimit)
		l, err := errlog.OpenSQLite(cfg.LogsDB, cfg.ErrorLogLimit)
		if err != nil {
			return nil, err
		}
		return l, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("error log: redis", "addr", cfg.Redis.Addr, "limit", cfg.ErrorLogLimit)
	return errlog.NewRedisLog(client, "", cfg.ErrorLogLimit), nil
}

func openCache(ctx context.Context, cfg config.Config, d cache.Downloader, logger *slog.Logger) (service.ContentCache, error) {
	if !cfg.MinIO.Enabled() {
		logger.Info("content cache: disk", "dir", cfg.FilesDir)
		return cache.NewDiskCache(cfg.FilesDir, d), nil
	}
	logger.Info("content cache: minio", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.Bucket)
	c, err := cache.NewMinIOCache(ctx, cache.MinIOConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		Secure:    cfg.MinIO.Secure,
	}, d)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// cmd/server/serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esplit/internal/auth"
	"esplit/internal/config"
	"esplit/internal/database"
	"esplit/internal/handlers"
	"esplit/internal/jobs"
	"esplit/internal/logger"
	"esplit/internal/server"
	"esplit/internal/session"
	"esplit/internal/storage"
	"esplit/internal/upload"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrate, "skip_migrate", false, "Do not migrate the schema on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger.SetLevelString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if !skipMigrate {
		if err := database.MigrateDB(db); err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet")
	}

	provider := auth.NewProvider(
		auth.NewGormUserStore(db),
		auth.NewRedisSessionStore(rdb),
		[]byte(cfg.JWTSecret),
		cfg.TokenTTL,
	)
	defer provider.Close()

	jobStore := jobs.NewGormStore(db)
	writer := jobs.NewWriter(jobStore, jobs.NewRedisNotifier(rdb, cfg.Redis.JobsChannel))

	var sniff upload.Sniffer
	if cfg.Upload.StrictSniff {
		sniff = upload.AudioSniffer
	}
	registry := upload.NewRegistry(
		func(userID uint) upload.Gate { return session.Open(provider, userID) },
		upload.Deps{
			Validator: upload.NewValidator(cfg.Upload.MaxBytes, sniff),
			Channel:   upload.NewChannel(minioClient),
			Writer:    writer,
		},
	)

	router := server.NewRouter(server.Options{
		Auth:     provider,
		Verifier: provider,
		Uploads:  registry,
		Jobs:     jobStore,
		Signer:   minioClient,
		Cookies: handlers.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		Upload: handlers.UploadConfig{
			StagingDir: cfg.Upload.StagingDir,
			MaxBytes:   cfg.Upload.MaxBytes,
		},
		CORS:       cfg.CORSOrigin,
		LoginRate:  cfg.LoginRateLimit,
		LoginBurst: cfg.LoginRateBurst,
		Checks: map[string]server.Pinger{
			"postgres": server.PingFunc(sqlDB.PingContext),
			"redis":    server.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			"minio":    minioClient,
		},
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown did not finish cleanly")
	}
	// aborts transfers still in flight and removes staged files
	registry.Close()
	return nil
}

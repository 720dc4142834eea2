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

	"github.com/jonboulle/clockwork"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/pagescheduler/internal/adapter/driven/facebook"
	sqliteadapter "github.com/ericfisherdev/pagescheduler/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/pagescheduler/internal/adapter/driven/tokencodec"
	httphandler "github.com/ericfisherdev/pagescheduler/internal/adapter/driving/http"
	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/config"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"upload_dir", cfg.UploadDir,
		"cipher_mode", cfg.CipherMode,
		"refresh_interval", cfg.RefreshInterval,
		"config_file", cfg.ConfigFile,
		"app_configured", cfg.HasAppCredentials(),
	)
	if len(cfg.UndecodedKeys) > 0 {
		logger.Warn("unknown keys in config file", "file", cfg.ConfigFile, "keys", cfg.UndecodedKeys)
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", db.Path())

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "schema_version", version)

	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	// 5. Wire adapters.
	options := sqliteadapter.NewOptionRepo(db)
	userMeta := sqliteadapter.NewUserMetaRepo(db)
	pageTokens := sqliteadapter.NewPageTokenRepo(db)
	postStore := sqliteadapter.NewPostRepo(db)

	codec, err := newCodec(ctx, cfg, options, logger)
	if err != nil {
		return err
	}

	graph, err := facebook.NewClient(cfg.GraphBaseURL, "")
	if err != nil {
		return err
	}

	// 6. Create services.
	clock := clockwork.NewRealClock()
	fallbackApp := model.AppCredentials{AppID: cfg.AppID, AppSecret: cfg.AppSecret}

	credentials := application.NewCredentialStore(codec, userMeta, pageTokens, clock, logger)
	appSource := application.NewAppCredentialSource(options, fallbackApp, logger)
	tokens := application.NewTokenManager(credentials, graph, appSource, clock, logger)
	connections := application.NewConnectionService(graph, graph, tokens, credentials, appSource, userMeta, options, clock, logger)
	posts := application.NewPostService(graph, credentials, postStore, clock, logger)

	// 7. Start the token refresh scheduler.
	scheduler := application.NewRefreshScheduler(tokens, cfg.RefreshInterval, clock, logger)
	go scheduler.Start(ctx)

	// 8. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(httphandler.Deps{
		Tokens:        tokens,
		Connections:   connections,
		Posts:         posts,
		App:           appSource,
		Credentials:   credentials,
		Refresh:       scheduler.Trigger,
		CipherMode:    string(codec.Mode()),
		UploadDir:     cfg.UploadDir,
		DefaultUserID: cfg.DefaultUserID,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	logger.Info("pagescheduler started",
		"listen_addr", cfg.ListenAddr,
		"refresh_interval", cfg.RefreshInterval,
		"confidential", codec.Confidential(),
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newCodec builds the token codec for the configured cipher mode. The
// base64 mode is accepted but reported loudly since tokens are then stored
// in recoverable form.
func newCodec(ctx context.Context, cfg *config.Config, options *sqliteadapter.OptionRepo, logger *slog.Logger) (*tokencodec.Codec, error) {
	mode, err := tokencodec.ParseMode(cfg.CipherMode)
	if err != nil {
		return nil, err
	}

	if mode == tokencodec.ModeBase64 {
		logger.Warn("token encryption disabled, stored tokens are only base64 encoded",
			"cipher_mode", mode,
		)
		metrics.CipherConfidential.Set(0)
		return tokencodec.NewFallback(), nil
	}

	key, err := application.EnsureEncryptionKey(ctx, options, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	codec, err := tokencodec.New(key)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	metrics.CipherConfidential.Set(1)
	return codec, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

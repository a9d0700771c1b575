package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snippet-sandbox/internal/analyzer"
	"snippet-sandbox/internal/api"
	"snippet-sandbox/internal/bot"
	"snippet-sandbox/internal/config"
	"snippet-sandbox/internal/engine"
	"snippet-sandbox/internal/ledger"
	"snippet-sandbox/internal/monitor"
	"snippet-sandbox/internal/policy"
	"snippet-sandbox/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Local development secrets
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded environment from .env")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	if cfg.Policy.OwnerID == 0 {
		log.Warn().Msg("policy.owner_id not set — admin commands will be refused for everyone")
	}

	// The chat bridge authenticates with this shared secret. Refusing to
	// start without it beats silently running an open gateway.
	gatewayToken := os.Getenv("GATEWAY_TOKEN")
	if gatewayToken == "" {
		log.Fatal().Msg("GATEWAY_TOKEN not set: export it or add it to .env so the chat bridge can authenticate")
	}
	cfg.Security.AllowedKeys = append(cfg.Security.AllowedKeys, gatewayToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Load persisted access policy state
	store := storage.NewFileStore(cfg.Policy.StateFile)
	state, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Policy.StateFile).Msg("failed to load policy state")
	}
	pol := policy.New(cfg.Policy.OwnerID, state, store)

	// Initialize database (optional — runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else {
			defer db.Close()
		}
	}

	// Initialize audit writer (buffered, reliable logging)
	var auditWriter *storage.AuditWriter
	if db != nil {
		auditWriter = storage.NewAuditWriter(db, 10000)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
	}

	// Build the execution pipeline
	eng := engine.New(
		engine.WithTimeout(cfg.Engine.Timeout),
		engine.WithMaxConcurrent(cfg.Engine.MaxConcurrent),
		engine.WithMaxCodeBytes(cfg.Engine.MaxCodeBytes),
		engine.WithMaxOutputBytes(cfg.Engine.MaxOutputBytes),
	)

	led := ledger.New()
	svc := bot.NewService(
		cfg.Policy.CommandPrefix,
		analyzer.New(),
		eng,
		pol,
		led,
		auditWriter,
		metrics,
	)

	// Create and start the gateway server
	server := api.NewServer(cfg, svc.Router(), led, db, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// Let in-flight executions finish before dropping their audit rows
		eng.Wait()

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("prefix", cfg.Policy.CommandPrefix).
		Bool("db_enabled", db != nil).
		Int64("owner_id", cfg.Policy.OwnerID).
		Msg("bot gateway starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("bot gateway stopped")
}

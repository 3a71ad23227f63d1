package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/decaymeter/internal/acoustics"
	"github.com/RMahshie/decaymeter/internal/api"
	"github.com/RMahshie/decaymeter/internal/api/handlers"
	"github.com/RMahshie/decaymeter/internal/config"
	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/internal/processing"
	"github.com/RMahshie/decaymeter/internal/repository/postgres"
	"github.com/RMahshie/decaymeter/internal/storage"
)

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Server.Env != "dev" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	analysisRepo := postgres.NewPostgresAnalysisRepository(db)

	// Storage
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to initialize storage")
	}

	// Analysis pipeline
	dec := decoder.New(decoder.Options{
		TargetSampleRate: cfg.Analysis.TargetSampleRate,
		MaxDuration:      cfg.Analysis.MaxDuration,
	}, log.Logger)
	analyzer, err := acoustics.NewAnalyzer(cfg.Analysis.AcousticsConfig(), dec, nil, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid analysis configuration")
	}
	processingSvc := processing.NewProcessingService(store, analysisRepo, analyzer, cfg.Processing.DecodeTimeout)

	// HTTP
	router, humaAPI := api.NewRouter(cfg.Server.AllowedOrigins)
	api.RegisterHealth(humaAPI)
	api.RegisterRoutes(humaAPI, handlers.NewAnalysisHandler(analysisRepo, store, processingSvc, analyzer, cfg.Processing.ProcessingTimeout))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Str("storage", cfg.Storage.Driver).Msg("Starting Decaymeter API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

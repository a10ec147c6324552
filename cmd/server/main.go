package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/wavescope/internal/api"
	"github.com/RMahshie/wavescope/internal/api/handlers"
	"github.com/RMahshie/wavescope/internal/config"
	"github.com/RMahshie/wavescope/internal/instrument/scpi"
	"github.com/RMahshie/wavescope/internal/instrument/sim"
	"github.com/RMahshie/wavescope/internal/logging"
	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/internal/repository/memory"
	"github.com/RMahshie/wavescope/internal/repository/postgres"
	"github.com/RMahshie/wavescope/internal/runs"
	"github.com/RMahshie/wavescope/internal/storage"
	"github.com/RMahshie/wavescope/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Configure zerolog for structured logging
	closer, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cfg.Server.Env == "dev",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx := context.Background()

	// Run bookkeeping: Postgres when configured, memory otherwise
	var repo repository.RunRepository
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		repo = postgres.NewPostgresRunRepository(db)
		log.Info().Msg("Using Postgres run repository")
	} else {
		repo = memory.NewRunRepository()
		log.Warn().Msg("DATABASE_URL not set, runs are kept in memory")
	}

	// Optional capture mirror
	var s3Service storage.Service
	opts := []runs.Option{runs.WithLogger(log.Logger)}
	if cfg.AWS.S3Bucket != "" {
		s3Cfg := storage.S3Config{
			Bucket:    cfg.AWS.S3Bucket,
			Endpoint:  cfg.AWS.S3Endpoint,
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKeyID,
			SecretKey: cfg.AWS.SecretAccessKey,
		}
		if err := storage.EnsureBucket(ctx, s3Cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare bucket")
		}
		s3Service, err = storage.NewS3Service(s3Cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 service")
		}
		opts = append(opts, runs.WithUploader(s3Service))
		log.Info().Str("bucket", s3Cfg.Bucket).Msg("Mirroring captures to object storage")
	}

	opener, err := runs.NewDeviceOpener(cfg.Instrument.Driver, scpi.Config{
		Transport: cfg.Instrument.Transport,
		Address:   cfg.Instrument.Address,
		Baud:      cfg.Instrument.Baud,
		Timeout:   cfg.Instrument.Timeout,
	}, sim.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure instrument")
	}

	svc := runs.NewService(repo, opener, runs.Settings{
		Sequencer: cfg.SequencerConfig(),
		Pulse:     cfg.PulseParams(),
		SavePath:  cfg.Export.SavePath,
		Format:    cfg.ExportFormat(),
	}, opts...)

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Create Huma API
	version := config.GetStringOrDefault("VERSION", "1.0.0")
	humaConfig := huma.DefaultConfig("Wavescope API", version)
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	// Register health endpoint
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = version
		resp.Body.Time = time.Now()
		return resp, nil
	})

	runHandler := handlers.NewRunHandler(svc, s3Service, cfg.PulseParams(), cfg.ExportFormat())
	api.RegisterRoutes(humaAPI, runHandler)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("driver", cfg.Instrument.Driver).Msg("Starting Wavescope API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// The active run must stop the instrument before the process exits.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Active run did not stop in time")
	}

	log.Info().Msg("Server exited")
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("user_agent", r.UserAgent()).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

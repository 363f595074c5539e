package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/eyedx/eyedx/internal/config"
	"github.com/eyedx/eyedx/internal/domain/diagnosis"
	"github.com/eyedx/eyedx/internal/domain/intake"
	"github.com/eyedx/eyedx/internal/domain/profile"
	"github.com/eyedx/eyedx/internal/platform/auth"
	"github.com/eyedx/eyedx/internal/platform/db"
	"github.com/eyedx/eyedx/internal/platform/imagestore"
	"github.com/eyedx/eyedx/internal/platform/metrics"
	"github.com/eyedx/eyedx/internal/platform/middleware"
)

const maxJSONBody = 1 << 20

// openRecords picks the record store named by STORE_DRIVER. The returned
// pool is nil for the file store.
func openRecords(ctx context.Context, cfg *config.Config) (diagnosis.RecordRepository, *pgxpool.Pool, error) {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return diagnosis.NewFileRecordRepo(cfg.RecordsDir()), nil, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return diagnosis.NewRecordRepoPG(pool), pool, nil
}

func newDiagnosisService(cfg *config.Config, records diagnosis.RecordRepository, logger zerolog.Logger, m *metrics.Collector) *diagnosis.Service {
	opts := []diagnosis.ClassifierOption{
		diagnosis.WithTimeout(cfg.ClassifierTimeout),
		diagnosis.WithLogger(logger.With().Str("component", "classifier").Logger()),
	}
	if m != nil {
		opts = append(opts, diagnosis.WithObserver(m))
	}
	svc := diagnosis.NewService(records, diagnosis.NewHTTPClassifier(cfg.ClassifierURL, opts...))
	if m != nil {
		svc.SetObserver(m)
	}
	return svc
}

func buildServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*echo.Echo, func(), error) {
	collector := metrics.New()

	records, pool, err := openRecords(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	var pinger db.Pinger
	if pool != nil {
		cleanup = pool.Close
		pinger = pool
	}
	diagSvc := newDiagnosisService(cfg, records, logger, collector)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(maxJSONBody, cfg.MaxImageBytes))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(collector.Middleware())

	e.GET("/health", db.HealthHandler(cfg.StoreDriver, pinger))
	e.GET("/metrics", collector.Handler())

	apiV1 := e.Group("/api/v1")
	if cfg.AuthSigningKey != "" {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	} else {
		apiV1.Use(auth.DevAuthMiddleware())
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	read, write := auth.ReadAccess(), auth.WriteAccess()

	diagnosis.NewHandler(diagSvc).RegisterRoutes(apiV1, read, write)
	intake.NewHandler(intake.NewLegacyStore(cfg.LegacyIntakePath())).RegisterRoutes(apiV1, read, write)
	profile.NewHandler(profile.NewService(profile.NewFileRepo(cfg.ProfilePath()))).RegisterRoutes(apiV1, read, write)
	imagestore.NewHandler(imagestore.NewFileStore(cfg.ImagesDir(), cfg.MaxImageBytes)).RegisterRoutes(apiV1, read, write)

	return e, cleanup, nil
}

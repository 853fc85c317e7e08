package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trailmark/rotor/pkg/config"
	"github.com/trailmark/rotor/pkg/rotation"
	"github.com/trailmark/rotor/pkg/telemetry"
)

var (
	configPath = flag.String("config", "rotor.yaml", "Config file path")
	listenFlag = flag.String("listen", "", "Listen address (overrides config)")
	dbFlag     = flag.String("db", "", "Database path (overrides config)")
	Version    = "dev"
)

// Server glues the rotation engine to the HTTP surface.
type Server struct {
	db          *gorm.DB
	engine      *rotation.Engine
	cfg         *config.Config
	logger      zerolog.Logger
	rateLimiter *RateLimiter
	tokenHasher TokenHasher
	adminToken  string
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	if *listenFlag != "" {
		cfg.Server.Listen = *listenFlag
	}
	if *dbFlag != "" {
		cfg.Server.DBPath = *dbFlag
	}
	if err := cfg.Validate(); err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid config")
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("rotor server starting")

	ctx := context.Background()
	provider, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "rotor-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	db, err := gorm.Open(sqlite.Open(cfg.Server.DBPath), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	models := append(rotation.Models(), &APIToken{})
	if err := db.AutoMigrate(models...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	metrics := rotation.NewMetrics(prometheus.DefaultRegisterer)
	engine := rotation.NewEngine(db, engineConfig(cfg), rotation.NewStaticIPSource(cfg.Proxy.ExitIPs), logger, metrics)

	srv := &Server{
		db:          db,
		engine:      engine,
		cfg:         cfg,
		logger:      logger,
		rateLimiter: NewRateLimiter(),
		tokenHasher: NewTokenHasher([]byte(cfg.Server.TokenSalt)),
		adminToken:  cfg.Server.AdminToken,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(withRequestContext(logger), gin.Recovery())

	r.GET("/v1/health", srv.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv.registerAssignmentRoutes(r)
	srv.registerAdminRoutes(r)

	logger.Info().Str("listen", cfg.Server.Listen).Msg("listening")
	if err := r.Run(cfg.Server.Listen); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func engineConfig(cfg *config.Config) rotation.Config {
	return rotation.Config{
		CycleMinutesMin:       cfg.Rotation.CycleMinutesMin,
		CycleMinutesMax:       cfg.Rotation.CycleMinutesMax,
		MaxBatchSize:          cfg.Rotation.MaxBatchSize,
		DefaultClickThreshold: cfg.Rotation.DefaultClickThreshold,
		ItemTimeout:           time.Duration(cfg.Rotation.ItemTimeoutMs) * time.Millisecond,
		DedupWindow:           time.Duration(cfg.Rotation.DedupWindowHours) * time.Hour,
		Watermark: rotation.WatermarkConfig{
			Min:           cfg.Watermark.Min,
			Max:           cfg.Watermark.Max,
			Default:       cfg.Watermark.Default,
			SafetyFactor:  cfg.Watermark.SafetyFactor,
			HistoryWindow: time.Duration(cfg.Watermark.HistoryWindowHrs) * time.Hour,
		},
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":     "healthy",
		"version":    Version,
		"rate_limit": s.rateLimiter.Stats(),
	})
}

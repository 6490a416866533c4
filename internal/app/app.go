package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartbrief/core/internal/config"
	"github.com/smartbrief/core/internal/database"
	"github.com/smartbrief/core/internal/middleware"
	"github.com/smartbrief/core/internal/modules/ai"
	"github.com/smartbrief/core/internal/modules/auth"
	"github.com/smartbrief/core/internal/modules/credit"
	"github.com/smartbrief/core/internal/modules/ingest"
	"github.com/smartbrief/core/internal/modules/summary"
	"github.com/smartbrief/core/internal/pkg/jwt"
	"github.com/smartbrief/core/internal/pkg/metrics"
	pkgredis "github.com/smartbrief/core/internal/pkg/redis"
	"github.com/smartbrief/core/internal/store"
	"github.com/smartbrief/core/internal/store/gormstore"
	"github.com/smartbrief/core/internal/store/mongostore"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	store    store.Store
	redis    *pkgredis.Client
	registry *prometheus.Registry
	logger   *zap.Logger
	started  time.Time

	gate      *auth.Gate
	gateway   *ai.Gateway
	ledger    *credit.Ledger
	summaries *summary.Service
}

// New initializes the application: storage → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var rc *pkgredis.Client
	if cfg.Redis.Enable {
		rc, err = pkgredis.Connect(ctx, cfg.Redis.URLValue())
		if err != nil {
			_ = st.Close(context.Background())
			return nil, fmt.Errorf("redis: %w", err)
		}
	} else {
		logger.Warn("redis disabled, rate limiting and idempotence guard are off")
	}

	gateway, err := ai.New(cfg.AI, logger.Named("ai"))
	if err != nil {
		_ = st.Close(context.Background())
		return nil, fmt.Errorf("ai: %w", err)
	}

	var archiver ingest.Archiver
	if cfg.UploadArchive.Enable {
		s3, err := ingest.NewS3Archiver(cfg.UploadArchive)
		if err != nil {
			_ = st.Close(context.Background())
			return nil, fmt.Errorf("upload archive: %w", err)
		}
		archiver = s3
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(corsMiddleware(cfg))

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		metrics.MustRegister(registry)
	}

	ledger := credit.NewLedger(st, logger.Named("credit"))
	a := &App{
		cfg:       cfg,
		router:    router,
		store:     st,
		redis:     rc,
		registry:  registry,
		logger:    logger,
		started:   time.Now(),
		gate:      auth.NewGate(st, jwt.New(cfg.JWTSecret)),
		gateway:   gateway,
		ledger:    ledger,
		summaries: summary.NewService(st, ledger, gateway, ingest.NewIngestor(archiver, logger.Named("ingest")), logger.Named("summary")),
	}
	a.registerRoutes()

	logger.Info("application ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", rc.Enabled()),
		zap.String("default_provider", cfg.AI.DefaultProvider),
		zap.Bool("upload_archive", archiver != nil),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		st, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.AutoMigrate {
			if err := st.EnsureIndexes(ctx); err != nil {
				_ = st.Close(context.Background())
				return nil, fmt.Errorf("ensure indexes: %w", err)
			}
		}
		return st, nil
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		return gormstore.New(db), nil
	}
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown releases storage and Redis connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.redis.Enabled() {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close(ctx))
	return errors.Join(errs...)
}

// Package app assembles the provisioning control plane from configuration:
// the key-value backend, the journal, metrics, repositories, the propagator
// and the HTTP modules.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/victoralfred/kube_provisioner/internal/cluster"
	"github.com/victoralfred/kube_provisioner/internal/landlord"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/internal/subscription"
	"github.com/victoralfred/kube_provisioner/internal/tenant"
	"github.com/victoralfred/kube_provisioner/internal/uniqueness"
	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/database"
	"github.com/victoralfred/kube_provisioner/pkg/journal"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
	"github.com/victoralfred/kube_provisioner/pkg/middleware"
	"github.com/victoralfred/kube_provisioner/pkg/migrations"
)

// App holds every wired component
type App struct {
	Config     *config.Config
	Store      kvstore.Store
	Journal    *journal.Writer // nil when the journal is disabled
	Metrics    *metrics.Collector
	Propagator *propagation.Propagator
	Validator  *uniqueness.Validator

	Clusters      *cluster.Module
	Tenants       *tenant.Module
	Subscriptions *subscription.Module
	Landlords     *landlord.Module

	log *logger.Logger
}

// OpenStore connects the backend selected by cfg.Store.Backend. The
// postgres backend runs the embedded migrations first.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return kvstore.NewMemoryStore(), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kv, err := kvstore.NewRedisStore(kvstore.RedisConfig{
			Client: client,
			Prefix: cfg.Redis.Prefix,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		log.WithField("addr", cfg.Redis.RedisAddr()).Info("redis store connected")
		return kv, nil

	case config.BackendPostgres:
		db, err := database.NewPostgres(database.Config{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := database.NewMigrationRunner(db, log).RunMigrations(ctx, migrations.FS, migrations.Dir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.WithField("host", cfg.Database.Host).Info("postgres store connected")
		return kvstore.NewPostgresStore(db), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// New wires the application over an open store. The app owns kv from here
// on and closes it in Close.
func New(cfg *config.Config, kv kvstore.Store, log *logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Store:  kv,
		log:    log,
	}

	a.Metrics = metrics.NewCollector(metrics.CollectorConfig{
		Store:                kv,
		UpdateInterval:       cfg.Metrics.UpdateInterval,
		EnableGoMetrics:      cfg.IsProduction(),
		EnableProcessMetrics: cfg.IsProduction(),
	})
	recorder := a.Metrics.Recorder()

	if cfg.Journal.Enabled {
		w, err := journal.NewWriter(journal.WriterConfig{
			BasePath:      cfg.Journal.Path,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			MaxFileSize:   cfg.Journal.MaxFileSize,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.Journal = w
	}

	a.Clusters = cluster.NewModule(kv, log, recorder)
	a.Landlords = landlord.NewModule(kv, log)
	tenantRepo := tenant.NewRepository(kv)
	subRepo := subscription.NewRepository(kv)

	a.Propagator = propagation.NewPropagator(subRepo, a.Landlords.Repository, tenantRepo, log).
		WithRecorder(recorder)
	if a.Journal != nil {
		a.Propagator.WithJournal(a.Journal)
	}

	a.Validator = uniqueness.NewValidator(subRepo, log)
	if cfg.Store.ReserveUniqueValues {
		a.Validator.WithReservations(kv, cfg.Store.ReservationLease)
	}

	a.Tenants = tenant.NewModule(tenantRepo, a.Clusters.Repository, a.Propagator, recorder, log)
	a.Subscriptions = subscription.NewModule(subRepo, tenantRepo, a.Clusters.Repository, a.Landlords.Repository,
		a.Validator, a.Propagator, recorder, log)

	log.WithField("backend", cfg.Store.Backend).
		WithField("journal", a.Journal != nil).
		WithField("reservations", a.Validator.ReservationsEnabled()).
		Info("all modules initialized successfully")
	return a, nil
}

// Router builds the gin engine with middleware, metrics and the /api/v1 routes
func (a *App) Router() *gin.Engine {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(a.log))
	router.Use(middleware.RequestLogger(a.log))
	router.Use(middleware.CORS())

	metrics.NewHandler(a.Metrics).RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	a.Clusters.Handler.RegisterRoutes(v1)
	a.Tenants.Handler.RegisterRoutes(v1)
	a.Subscriptions.Handler.RegisterRoutes(v1)
	a.Landlords.Handler.RegisterRoutes(v1)

	return router
}

// Start begins background metrics collection
func (a *App) Start() {
	a.Metrics.Start()
}

// Close flushes the journal and releases the store
func (a *App) Close() error {
	a.Metrics.Stop()

	var firstErr error
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.log.Error("failed to close journal", err)
			firstErr = err
		}
	}
	if err := a.Store.Close(); err != nil {
		a.log.Error("failed to close store", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

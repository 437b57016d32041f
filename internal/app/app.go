// Package app assembles the employee backend from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emp-backend/internal/api"
	"github.com/emp-backend/internal/config"
	"github.com/emp-backend/internal/logging"
	"github.com/emp-backend/internal/ratelimit"
	"github.com/emp-backend/internal/service"
	"github.com/emp-backend/internal/storage"
)

// App owns every component of a running backend
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	repo     storage.EmployeeRepository
	redis    *storage.RedisCache
	cache    *storage.CacheService
	audit    storage.AuditSink
	employee *service.EmployeeService
	server   *api.Server

	// closers run in reverse order on shutdown
	closers []namedCloser

	serveErr chan error
	once     sync.Once
	stopErr  error
}

type namedCloser struct {
	name  string
	close func() error
}

// New validates cfg and builds the application. Nothing is served until
// Start. On failure every component built so far is closed and the error
// names the component that failed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("init config: nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logging.SetGlobalLogger(logger)

	a := &App{
		cfg:      cfg,
		logger:   logger.WithField("profile", string(cfg.Profile)),
		serveErr: make(chan error, 1),
	}

	steps := []struct {
		name  string
		build func(context.Context) error
	}{
		{"storage", a.initStorage},
		{"cache", a.initCache},
		{"audit", a.initAudit},
		{"service", a.initService},
		{"server", a.initServer},
	}

	for _, step := range steps {
		if err := step.build(ctx); err != nil {
			_ = a.closeResources()
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}

	a.logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Driver,
		"cache":   cfg.Cache.Driver,
		"audit":   cfg.Audit.Driver,
	}).Info("Application initialized")

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.StorageDriverMemory:
		a.repo = storage.NewMemoryEmployeeRepository()
		return nil

	case config.StorageDriverPostgres:
		pg := &a.cfg.Storage.Postgres
		if a.cfg.Storage.AutoMigrate {
			a.logger.Info("Running database migrations")
			if err := storage.RunMigrations(pg.URL()); err != nil {
				return err
			}
		}

		db, err := storage.NewPostgresDB(ctx, pg, a.cfg.Storage.ConnectAttempts)
		if err != nil {
			return err
		}
		a.addCloser("postgres", func() error {
			db.Close()
			return nil
		})
		a.repo = storage.NewPostgresEmployeeRepository(db)
		return nil

	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *App) initCache(ctx context.Context) error {
	switch a.cfg.Cache.Driver {
	case config.CacheDriverNone:
		return nil

	case config.CacheDriverRedis:
		redis, err := storage.NewRedisCache(ctx, &a.cfg.Cache.Redis)
		if err != nil {
			return err
		}
		a.addCloser("redis", redis.Close)
		a.redis = redis
		a.cache = storage.NewCacheService(redis, a.cfg.Cache.TTL)
		return nil

	default:
		return fmt.Errorf("unknown cache driver %q", a.cfg.Cache.Driver)
	}
}

func (a *App) initAudit(ctx context.Context) error {
	switch a.cfg.Audit.Driver {
	case config.AuditDriverNone:
		a.audit = storage.NoopAuditSink{}
		return nil

	case config.AuditDriverMemory:
		a.audit = storage.NewMemoryAuditSink()
		return nil

	case config.AuditDriverClickHouse:
		db, err := storage.NewClickHouseDB(ctx, &a.cfg.Audit.ClickHouse)
		if err != nil {
			return err
		}
		sink, err := storage.NewClickHouseAuditSink(ctx, db)
		if err != nil {
			_ = db.Close()
			return err
		}
		a.addCloser("clickhouse", sink.Close)
		a.audit = sink
		return nil

	default:
		return fmt.Errorf("unknown audit driver %q", a.cfg.Audit.Driver)
	}
}

func (a *App) initService(ctx context.Context) error {
	// A nil *CacheService must not reach the interface as a typed nil.
	if a.cache != nil {
		a.employee = service.NewEmployeeService(a.repo, a.cache, a.audit)
	} else {
		a.employee = service.NewEmployeeService(a.repo, nil, a.audit)
	}
	return nil
}

func (a *App) initServer(ctx context.Context) error {
	srv := a.cfg.Server

	checks := map[string]api.HealthCheck{
		"storage": a.repo.Ping,
		"audit":   a.audit.Ping,
	}
	if a.cache != nil {
		checks["cache"] = a.cache.Ping
	}

	proxies, err := api.ParseTrustedProxies(srv.TrustedProxies)
	if err != nil {
		return err
	}

	serverCfg := &api.ServerConfig{
		Host:            srv.Host,
		Port:            srv.Port,
		ReadTimeout:     srv.ReadTimeout,
		WriteTimeout:    srv.WriteTimeout,
		IdleTimeout:     srv.IdleTimeout,
		ShutdownTimeout: srv.ShutdownTimeout,
		AllowedOrigins:  srv.AllowedOrigins,
		RequestsPerSec:  a.cfg.RateLimit.RequestsPerSecond,
		Burst:           a.cfg.RateLimit.Burst,
		TrustedProxies:  proxies,
	}

	// With Redis available the limit holds across every instance.
	if a.redis != nil {
		limiter, err := ratelimit.NewWindowLimiter(&ratelimit.WindowLimiterConfig{
			Redis:      a.redis.Client(),
			Limit:      a.cfg.RateLimit.Burst,
			WindowSize: ratelimit.WindowForRate(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst),
		})
		if err != nil {
			return err
		}
		serverCfg.Limiter = limiter
	}

	a.server = api.NewServer(serverCfg, a.employee, checks)
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// closeResources closes in reverse construction order and joins the errors
func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.WithError(err).WithField("component", c.name).Warn("Failed to close component")
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Start binds the HTTP listener and serves in the background. The bind
// error is returned directly.
func (a *App) Start() error {
	if err := a.server.Listen(); err != nil {
		return err
	}

	go func() {
		a.serveErr <- a.server.Serve()
	}()

	a.logger.WithField("addr", a.server.Addr()).Info("Application started")
	return nil
}

// Addr returns the address the server is bound to
func (a *App) Addr() string {
	return a.server.Addr()
}

// Service returns the employee service
func (a *App) Service() *service.EmployeeService {
	return a.employee
}

// Shutdown stops the HTTP server and then closes every resource. Calls
// after the first return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		a.logger.Info("Shutting down application")

		if a.cache != nil {
			stats := a.cache.Stats()
			a.logger.WithFields(map[string]interface{}{
				"hits":    stats.Hits,
				"misses":  stats.Misses,
				"errors":  stats.Errors,
				"hitRate": stats.HitRate,
				"breaker": stats.BreakerState,
			}).Info("Cache statistics")
		}

		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
		if err := a.closeResources(); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

// Run starts the application and blocks until ctx is done or the server
// fails, then shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		_ = a.closeResources()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err := <-a.serveErr:
		if err != nil {
			runErr = fmt.Errorf("server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/api"
	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/health"
	"github.com/wellspring-app/wellspring/internal/infra/postgres"
	"github.com/wellspring-app/wellspring/internal/infra/scheduler"
	"github.com/wellspring-app/wellspring/internal/infra/sqlite"
	"github.com/wellspring-app/wellspring/internal/keyring"
	"github.com/wellspring-app/wellspring/internal/logger"
)

// Backend is everything a store provides to the service.
type Backend interface {
	domain.ProgressStore
	domain.AggregateSource
	domain.ActionLog
	domain.NotificationStore
	io.Closer
}

var (
	_ Backend = (*sqlite.DB)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Daemon is the Wellspring runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Store    Backend
	Engine   *gamification.Engine
	Notifier *gamification.Notifier
	Live     *api.LiveHub
	Health   *health.Checker
	Retry    *scheduler.RetryQueue // nil when redelivery is disabled
	Server   *api.Server
	Log      *log.Logger

	logCloser io.Closer
	cancel    context.CancelFunc
}

// New loads configuration and creates a Daemon.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, clock.Real{})
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config, clk clock.Clock) (*Daemon, error) {
	settings, err := cfg.Gamification.Settings()
	if err != nil {
		return nil, err
	}

	l, logCloser, err := logger.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	notifier := gamification.NewNotifier(store, cfg.Notifications, settings.Catalog, settings.Location,
		gamification.WithClock(clk), gamification.WithLogger(l))
	live := api.NewLiveHub()

	engine, err := gamification.New(store, store, settings,
		gamification.WithClock(clk),
		gamification.WithLogger(l),
		gamification.WithObserver(notifier),
		gamification.WithObserver(live),
	)
	if err != nil {
		store.Close()
		logCloser.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	dataDir := ""
	if cfg.Store.Driver == DriverSQLite {
		dataDir = cfg.Store.DataDir
	}
	checker := health.NewChecker(store, dataDir, settings.Catalog, clk, l)

	deps := api.Deps{
		Engine:   engine,
		Actions:  store,
		Notifier: notifier,
		Health:   checker,
		Live:     live,
		Clock:    clk,
		Logger:   l,
	}
	var retry *scheduler.RetryQueue
	if cfg.Redelivery.Enabled {
		retry = scheduler.NewRetryQueue(cfg.Redelivery.Scheduler(), clk, l)
		deps.Redelivery = redeliverer{queue: retry, engine: engine}
	}
	srv := api.NewServer(deps)
	srv.SetTimeout(cfg.API.RequestTimeout.Duration)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:    cfg,
		Store:     store,
		Engine:    engine,
		Notifier:  notifier,
		Live:      live,
		Health:    checker,
		Retry:     retry,
		Server:    srv,
		Log:       l.With("component", "daemon"),
		logCloser: logCloser,
	}, nil
}

// OpenStore opens the configured backend. A postgres store without a DSN
// in config reads it from the OS keyring.
func OpenStore(ctx context.Context, sc StoreConfig) (Backend, error) {
	switch sc.Driver {
	case DriverSQLite:
		db, err := sqlite.Open(sc.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case DriverPostgres:
		dsn := sc.DSN
		if dsn == "" {
			var err error
			if dsn, err = keyring.DSN(); err != nil {
				return nil, fmt.Errorf("postgres dsn: %w (run `wellspring store login`)", err)
			}
		}
		if err := postgres.ValidateConnString(dsn); err != nil {
			return nil, err
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, sc.Driver)
	}
}

// redeliverer queues failed dispatches for a background retry. Dispatch
// is idempotent per source id, so a retry only fills in the missing steps.
type redeliverer struct {
	queue  *scheduler.RetryQueue
	engine *gamification.Engine
}

func (r redeliverer) Redeliver(t gamification.Trigger, cause error) bool {
	if t.SourceID == "" {
		return false
	}
	return r.queue.ScheduleRetry(scheduler.RetryEntry{
		Key: t.UserID + "/" + t.SourceID,
		Task: func(ctx context.Context) error {
			return r.engine.Dispatch(ctx, t).Retryable()
		},
		Error: cause.Error(),
	})
}

// Addr is the listen address.
func (d *Daemon) Addr() string {
	return net.JoinHostPort(d.Config.API.Host, strconv.Itoa(d.Config.API.Port))
}

// Serve starts the HTTP server and blocks until ctx is done.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then shuts down gracefully.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)
	if d.Retry != nil {
		go d.Retry.Run(ctx)
	}

	httpServer := &http.Server{
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	d.Log.Info("serving", "addr", ln.Addr().String(), "store", d.Config.Store.Driver, "metrics", d.Config.Telemetry.Prometheus)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	d.Log.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.logCloser != nil {
		errs = append(errs, d.logCloser.Close())
	}
	return errors.Join(errs...)
}

// Package app wires the DecisionLogr share gate runtime: config, logging, store selection,
// HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"decisionlogr/cmd/internal/share"
	shareapi "decisionlogr/cmd/internal/share/api"
	"decisionlogr/cmd/security/passcode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// backend is the selected share store plus its lifecycle hooks.
type backend struct {
	name  string
	store share.Store
	// ping reports store readiness; nil means always ready (memory).
	ping  func(ctx context.Context) error
	close func()
}

// App is the server runtime: it owns the store, the gate and the HTTP wiring.
type App struct {
	cfg Config
	log Logger

	backend backend
	gate    *share.Gate

	registry *prometheus.Registry
	metrics  *httpMetrics
	handler  http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	be, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := newWithBackend(cfg, log, be)
	if err != nil {
		be.close()
		return nil, err
	}
	return a, nil
}

func newWithBackend(cfg Config, log Logger, be backend) (*App, error) {
	reg := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	gateMetrics, err := share.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	httpM, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}

	hasher, err := passcode.FromEnv()
	if err != nil {
		return nil, err
	}

	gate, err := share.NewGate(be.store, be.store,
		share.WithConfig(share.LoadConfigFromEnv()),
		share.WithPasscodeHasher(hasher),
		share.WithLogger(log),
		share.WithMetrics(gateMetrics),
	)
	if err != nil {
		return nil, err
	}

	shareHandler, err := shareapi.NewHandler(log, gate, shareapi.LoadConfigFromEnv())
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		backend:  be,
		gate:     gate,
		registry: reg,
		metrics:  httpM,
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux, shareHandler)
	a.handler = WithRequestLogging(WithCORS(mux, cfg), log, httpM)
	return a, nil
}

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Gate returns the share access gate.
func (a *App) Gate() *share.Gate { return a.gate }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.backend.name)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.Close()
		return err
	}

	a.Close()
	a.log.Info("server.stopped")
	return nil
}

// Close releases store resources.
func (a *App) Close() {
	if err := a.backend.store.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	a.backend.close()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newBackend picks Postgres when a database URL is set, then SQLite, then the in-memory dev store.
func newBackend(ctx context.Context, cfg Config, log Logger) (backend, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		st, err := share.NewPostgresStore(pool, share.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return backend{}, err
		}
		if cfg.DBApplySchema {
			if err := st.ApplySchema(ctx); err != nil {
				pool.Close()
				return backend{}, err
			}
			log.Info("db.schema.applied", "schema", cfg.DBSchema)
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		// The app owns the pool; PostgresStore.Close is a no-op.
		return backend{
			name:  "postgres",
			store: st,
			ping: func(ctx context.Context) error {
				return PingDB(ctx, pool, 2*time.Second)
			},
			close: pool.Close,
		}, nil

	case cfg.SQLitePath != "":
		st, err := share.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return backend{
			name:  "sqlite",
			store: st,
			ping: func(ctx context.Context) error {
				pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				return st.Ping(pctx)
			},
			close: func() {},
		}, nil

	default:
		log.Info("db.disabled.inmemory_store")
		return memoryBackend(), nil
	}
}

func memoryBackend() backend {
	return backend{name: "memory", store: share.NewMemoryStore(), close: func() {}}
}

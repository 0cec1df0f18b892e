package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/scheduler"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/store"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/ws"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
	xhttp "github.com/nimazasinich/crypto-dt-source-sub019/pkg/http"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

type namedCloser struct {
	name   string
	closer io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	store     *store.Store
	scheduler *scheduler.Scheduler
	manager   *ws.Manager
	handler   xhttp.Handler

	httpServer *xhttp.Server
	snapshot   repository.SnapshotStore
	closers    []namedCloser
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	st *store.Store,
	sched *scheduler.Scheduler,
	manager *ws.Manager,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		logger:    l,
		store:     st,
		scheduler: sched,
		manager:   manager,
		handler:   handler,
	}
}

// SetSnapshot enables cache restore on startup from a durable mirror.
func (a *App) SetSnapshot(s repository.SnapshotStore) { a.snapshot = s }

// AddCloser registers a resource to close on shutdown, in LIFO order.
func (a *App) AddCloser(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: c})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.restoreSnapshot(ctx)

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}

	a.httpServer = xhttp.NewServer(a.logger, a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)

	go a.manager.Run(ctx)
	a.scheduler.Start(ctx)
	a.logger.Info("scheduler started",
		applogger.Strings("symbols", a.cfg.Tracker.Symbols),
	)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// restoreSnapshot seeds the cache with the last persisted values so a
// restart does not begin empty. Failures degrade to a cold start.
func (a *App) restoreSnapshot(ctx context.Context) {
	if a.snapshot == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	entries, err := a.snapshot.LoadAll(loadCtx)
	if err != nil {
		a.logger.Warn("cache restore failed, starting cold", applogger.Error(err))
		return
	}
	restored := 0
	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		if a.store.SetAt(e.Value, e.FetchedAt, e.TTL, e.Source) {
			restored++
		}
	}
	a.logger.Info("cache restored from snapshot", applogger.Int("entries", restored))
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.scheduler.Wait()
	a.manager.Shutdown(shutdownCtx)

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("http server stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.closer.Close(); err != nil {
			a.logger.Error("close error",
				applogger.String("resource", nc.name),
				applogger.Error(err),
			)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

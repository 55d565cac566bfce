package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"OrgTrader/internal/usecase"
	"OrgTrader/pkg/config"
	xhttp "OrgTrader/pkg/http"
	applogger "OrgTrader/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	processor  *usecase.EpochProcessor
	ingest     *Ingest
	httpServer *xhttp.Server
	closers    []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates a new App instance with all dependencies. httpServer may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	processor *usecase.EpochProcessor,
	ingest *Ingest,
	httpServer *xhttp.Server,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		l:          l,
		processor:  processor,
		ingest:     ingest,
		httpServer: httpServer,
	}
}

// AddCloser registers a resource released on shutdown, in reverse order of registration.
func (a *App) AddCloser(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs until ctx is done or the processor stops. Once a finite feed is exhausted
// the HTTP API keeps serving the last report until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sources errgroup.Group
	for _, src := range a.ingest.Sources {
		src := src
		sources.Go(func() error {
			err := src.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.l.Error("bar source stopped", applogger.Error(err))
				return err
			}
			return nil
		})
	}
	a.l.Info("ensemble started",
		applogger.String("ensemble", a.processor.Ensemble().Name()),
		applogger.String("feed", a.cfg.Feed.Type),
		applogger.String("broker", a.cfg.Broker.Type),
		applogger.Int("analysts", a.processor.Ensemble().Len()),
	)

	err := a.processor.Run(runCtx, a.ingest.Feed)
	switch {
	case err == nil:
		if a.httpServer != nil {
			a.l.Info("feed exhausted, serving last report until shutdown")
			<-ctx.Done()
		}
	case errors.Is(err, context.Canceled):
		a.l.Info("shutdown signal received")
		err = nil
	default:
		a.l.Error("processor stopped", applogger.Error(err))
	}

	cancel()
	if srcErr := sources.Wait(); err == nil {
		err = srcErr
	}

	if serr := a.shutdown(); err == nil {
		err = serr
	}
	return err
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")

	var errs []error
	if a.httpServer != nil {
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

// Package app wires configuration into the running bot: venue clients,
// the journal and its mirrors, the instance lock, the status API and the
// engine itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/engine"
	"github.com/alanyoungcy/updownbot/internal/journal"
	"github.com/alanyoungcy/updownbot/internal/lifecycle"
	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires every dependency, takes the instance lock and runs the engine
// with its satellites until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.Log.Level),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if deps.Locks != nil {
		lease, err := deps.Locks.Acquire(ctx, a.cfg.Redis.LockKey, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return errors.New("app: another instance holds the trading lock")
			}
			return fmt.Errorf("app: acquire lock: %w", err)
		}
		a.closers = append(a.closers, lease.Release)
		deps.Lease = lease
	}

	params := StrategyParams(a.cfg.Strategy)
	if err := params.Validate(); err != nil {
		return fmt.Errorf("app: strategy: %w", err)
	}

	v, err := a.buildVenue(ctx, deps)
	if err != nil {
		return err
	}
	if v.close != nil {
		a.closers = append(a.closers, v.close)
	}

	var sinks []journal.Sink
	if deps.JournalStore != nil {
		sinks = append(sinks, journal.StoreSink(deps.JournalStore))
	}
	if deps.Bus != nil {
		sinks = append(sinks, journal.BusSink(deps.Bus, a.cfg.Redis.JournalChannel, a.cfg.Redis.JournalStream))
	}
	jr, err := journal.Open(a.cfg.Journal.Dir, a.logger, sinks...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	var alerter engine.Alerter
	if deps.Notifier.Enabled() {
		alerter = deps.Notifier
	}

	gen := strategy.NewGenerator(params)
	machine := lifecycle.NewMachine(LifecycleConfig(a.cfg.Lifecycle), jr, a.logger)
	eng := engine.New(EngineConfig(a.cfg), engine.Deps{
		Ticks:      v.ticks,
		Discovery:  v.discovery,
		Quotes:     v.quotes,
		Oracle:     v.oracle,
		Executor:   v.executor,
		Redeemer:   v.redeemer,
		Journal:    jr,
		QuoteCache: deps.QuoteCache,
		Limiter:    deps.Limiter,
		Alerter:    alerter,
		Observer:   deps.Metrics,
	}, gen, machine, a.logger)

	// The archiver outlives the engine so its final upload sees the
	// shutdown lines.
	archCtx, stopArchiver := context.WithCancel(context.WithoutCancel(ctx))
	archDone := make(chan struct{})
	if deps.Blob != nil {
		archiver := newArchiver(deps.Blob, a.cfg.S3.Prefix, jr, a.logger)
		go func() {
			defer close(archDone)
			_ = archiver.Run(archCtx, a.cfg.S3.ArchiveInterval.Duration)
		}()
	} else {
		close(archDone)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	if deps.Lease != nil {
		g.Go(func() error { return a.keepLease(gctx, deps.Lease) })
	}
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(eng.Status, a.cfg.Server.StatusPush.Duration, a.logger)
		srv := server.New(server.Config{
			Addr:       a.cfg.Server.Addr,
			APIKey:     a.cfg.Server.APIKey,
			RateLimit:  a.cfg.Server.RateLimit,
			RateWindow: a.cfg.Server.RateWindow.Duration,
		}, server.Deps{
			Mode:    a.cfg.Mode,
			Status:  eng.Status,
			Trades:  deps.JournalStore,
			Metrics: deps.Metrics.Handler(),
			Hub:     hub,
			Limiter: deps.Limiter,
		}, a.logger)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx, a.cfg.Lifecycle.ShutdownTimeout.Duration) })
	}

	runErr := g.Wait()

	if err := jr.Close(); err != nil {
		a.logger.Warn("journal close failed", slog.String("error", err.Error()))
	}
	stopArchiver()
	<-archDone

	if ctx.Err() != nil && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		return nil
	}
	return runErr
}

// keepLease refreshes the instance lock at a third of its TTL. Losing the
// lock stops the bot.
func (a *App) keepLease(ctx context.Context, lease domain.Lease) error {
	interval := max(a.cfg.Redis.LockTTL.Duration/3, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("app: instance lock lost: %w", err)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package engine drives the bot: it owns the lifecycle state machine and
// the signal generator, and serializes every state change through a single
// event loop fed by the tick stream, window discovery and the results of
// detached order work.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/lifecycle"
	"github.com/alanyoungcy/updownbot/internal/strategy"
	"github.com/alanyoungcy/updownbot/internal/tick"
)

// Config holds the orchestration timings and order pricing.
type Config struct {
	DiscoveryInterval time.Duration
	StatusInterval    time.Duration
	EntrySlippage     float64
	ExitSlippage      float64
	OrderTimeout      time.Duration
	ShutdownTimeout   time.Duration
	BufferCapacity    int
	// OrderRateLimit caps orders per OrderRateWindow when a limiter is set.
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// DefaultConfig returns the live trading defaults.
func DefaultConfig() Config {
	return Config{
		DiscoveryInterval: time.Second,
		StatusInterval:    500 * time.Millisecond,
		EntrySlippage:     0.02,
		ExitSlippage:      0.02,
		OrderTimeout:      30 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		BufferCapacity:    tick.LiveCapacity,
		OrderRateLimit:    10,
		OrderRateWindow:   time.Second,
	}
}

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Observer receives metrics from the loop. Implementations must not block.
type Observer interface {
	Tick()
	Decision(outcome string)
	Order(side, result string)
	Trade(result string, pnl float64)
	SessionPnL(v float64)
	BreakerTrip()
	Basis(v float64)
	Balance(v float64)
}

// Deps are the collaborators of the engine. Redeemer, QuoteCache, Limiter,
// Alerter and Observer are optional.
type Deps struct {
	Ticks      domain.TickSource
	Discovery  domain.WindowDiscovery
	Quotes     domain.QuoteSource
	Oracle     domain.OutcomeOracle
	Executor   domain.OrderExecutor
	Redeemer   domain.Redeemer
	Journal    domain.TradeLog
	QuoteCache domain.QuoteCache
	Limiter    domain.RateLimiter
	Alerter    Alerter
	Observer   Observer
}

// Engine is the window/session orchestrator.
type Engine struct {
	cfg     Config
	deps    Deps
	gen     *strategy.Generator
	machine *lifecycle.Machine
	buf     *tick.Buffer
	obs     Observer
	logger  *slog.Logger
	now     func() time.Time

	ticks   chan domain.Tick
	windows chan windowUpdate
	results chan any
	stopped chan struct{}
	tasks   sync.WaitGroup

	balance      float64
	startBalance float64
	lastSpot     float64
	// closing is set once shutdown has taken over the loop state.
	closing bool
	status  atomic.Pointer[Status]
}

type windowUpdate struct {
	window *domain.MarketWindow
	asks   map[domain.Outcome]float64
	bids   map[domain.Outcome]float64
}

type balanceResult struct {
	value float64
}

// New wires an engine. The generator and machine are owned by the engine
// from here on and must not be touched by other goroutines.
func New(cfg Config, deps Deps, gen *strategy.Generator, machine *lifecycle.Machine, logger *slog.Logger) *Engine {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = tick.LiveCapacity
	}
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	e := &Engine{
		cfg:     cfg,
		deps:    deps,
		gen:     gen,
		machine: machine,
		buf:     tick.NewBuffer(cfg.BufferCapacity),
		obs:     obs,
		logger:  logger.With(slog.String("component", "engine")),
		now:     time.Now,
		ticks:   make(chan domain.Tick, 1024),
		windows: make(chan windowUpdate, 4),
		results: make(chan any, 64),
		stopped: make(chan struct{}),
	}
	e.publishStatus()
	return e
}

// Run performs the startup sequence, then runs tick ingestion, discovery and
// the event loop until ctx is cancelled or the feed gives up. Shutdown work
// runs before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.startup(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.deps.Ticks.Run(gctx, e.ticks); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error { return e.discoveryLoop(gctx) })
	g.Go(func() error {
		defer close(e.stopped)
		return e.loop(gctx)
	})

	err := g.Wait()
	e.shutdown()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status returns the latest published snapshot. Safe for any goroutine.
func (e *Engine) Status() *Status {
	return e.status.Load()
}

// startup syncs balance, clears orders left by a previous run and adopts a
// position on the live window.
func (e *Engine) startup(ctx context.Context) {
	if bal, err := e.deps.Executor.Balance(ctx); err != nil {
		e.logger.WarnContext(ctx, "startup balance failed", slog.String("error", err.Error()))
	} else {
		e.balance, e.startBalance = bal, bal
		e.obs.Balance(bal)
		e.logger.InfoContext(ctx, "usdc balance", slog.Float64("balance", bal))
	}

	if err := e.deps.Executor.CancelAll(ctx); err != nil {
		e.logger.WarnContext(ctx, "startup cancel-all failed", slog.String("error", err.Error()))
	}

	w, err := e.deps.Discovery.CurrentWindow(ctx, e.now())
	if err != nil || w == nil {
		e.logger.InfoContext(ctx, "no live window at startup, skipping position sync")
		return
	}
	positions, err := e.deps.Executor.Positions(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "position sync failed", slog.String("error", err.Error()))
		return
	}
	for _, p := range positions {
		if pos, ok := e.machine.Recover(w, p); ok {
			e.alert(ctx, "trade_opened", "Recovered position",
				describePosition(*pos))
			break
		}
	}
	e.publishStatus()
}

// shutdown runs after the loop has exited, so it may touch loop state.
// Results of orders still in flight are applied before the journal closes
// what remains open.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	e.logger.Info("shutting down")
	e.closing = true
	e.settleTasks(ctx)
	if e.deps.Journal != nil {
		e.deps.Journal.CloseAllPending(e.lastSpot, "bot_shutdown")
	}
	if err := e.deps.Executor.CancelAll(ctx); err != nil {
		e.logger.Warn("shutdown cancel-all failed", slog.String("error", err.Error()))
	}
	e.publishStatus()
}

// settleTasks waits for detached work and applies its results until both
// run dry or ctx expires. Handling a result may spawn more work, such as an
// alert, so it loops.
func (e *Engine) settleTasks(ctx context.Context) {
	for {
		done := make(chan struct{})
		go func() {
			e.tasks.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			e.logger.Warn("detached tasks still running at shutdown")
			e.drainResults()
			return
		}
		if len(e.results) == 0 {
			return
		}
		e.drainResults()
	}
}

// spawn runs fn detached from the loop with its own deadline. Cancelling the
// run context does not abort order work already in flight.
func (e *Engine) spawn(ctx context.Context, fn func(ctx context.Context)) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
		defer cancel()
		fn(tctx)
	}()
}

// post hands a result to the loop. After the loop stopped, results are
// buffered for the shutdown drain or dropped when the buffer is full.
func (e *Engine) post(r any) {
	select {
	case e.results <- r:
	case <-e.stopped:
		select {
		case e.results <- r:
		default:
			e.logger.Warn("result dropped after shutdown")
		}
	}
}

func (e *Engine) drainResults() {
	for {
		select {
		case r := <-e.results:
			e.handleResult(context.Background(), r)
		default:
			return
		}
	}
}

func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.deps.Alerter == nil {
		return
	}
	e.spawn(ctx, func(ctx context.Context) {
		if err := e.deps.Alerter.Notify(ctx, event, title, message); err != nil {
			e.logger.Debug("alert failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	})
}

type nopObserver struct{}

func (nopObserver) Tick()                 {}
func (nopObserver) Decision(string)       {}
func (nopObserver) Order(string, string)  {}
func (nopObserver) Trade(string, float64) {}
func (nopObserver) SessionPnL(float64)    {}
func (nopObserver) BreakerTrip()          {}
func (nopObserver) Basis(float64)         {}
func (nopObserver) Balance(float64)       {}

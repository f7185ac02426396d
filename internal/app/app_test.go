package app

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/strategy"
	"github.com/alanyoungcy/updownbot/internal/tick"
)

func TestStrategyParamsDefaultsMatch(t *testing.T) {
	cfg := config.Defaults()
	got := StrategyParams(cfg.Strategy)
	assert.Equal(t, strategy.DefaultParams(), got)
	require.NoError(t, got.Validate())

	got.Tiers[0] = 42
	assert.NotEqual(t, 42.0, cfg.Strategy.Tiers[0], "tiers are copied")
}

func TestLifecycleConfigMapping(t *testing.T) {
	cfg := config.Defaults()
	cfg.Lifecycle.MaxTradesPerWindow = 5
	lc := LifecycleConfig(cfg.Lifecycle)

	assert.Equal(t, 5, lc.MaxTradesPerWindow)
	assert.Equal(t, 5*time.Second, lc.ExitCooldown)
	assert.Equal(t, 20*time.Second, lc.EntryBlackout)
	assert.Equal(t, 500*time.Millisecond, lc.StaleTickAge)
	assert.Equal(t, 60, lc.BasisSamples)
	assert.Positive(t, lc.HistorySize)
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := config.Defaults()
	ec := EngineConfig(&cfg)

	assert.Equal(t, time.Second, ec.DiscoveryInterval)
	assert.InDelta(t, 0.02, ec.EntrySlippage, 1e-9)
	assert.Equal(t, 30*time.Second, ec.OrderTimeout)
	assert.Equal(t, tick.LiveCapacity, ec.BufferCapacity)
	assert.Equal(t, 10, ec.OrderRateLimit)
}

func TestPolygonConfigFollowsChain(t *testing.T) {
	cfg := config.Defaults()
	cfg.Polymarket.ChainID = 80002
	cfg.Polygon.Collateral = ""

	pc := PolygonConfig(&cfg)
	assert.Equal(t, int64(80002), pc.ChainID)
	assert.NotEmpty(t, pc.Collateral, "empty address falls back to the default")
	assert.Equal(t, cfg.Polygon.ConditionalTokens, pc.ConditionalTokens)
}

func TestFeedConfigMapping(t *testing.T) {
	cfg := config.Defaults()
	cfg.Binance.MaxFailures = 7
	fc := FeedConfig(cfg.Binance)
	assert.Equal(t, cfg.Binance.WSURL, fc.URL)
	assert.Equal(t, time.Second, fc.ReconnectDelay)
	assert.Equal(t, 7, fc.MaxFailures)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	logger, closeFn := NewLogger(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	logger.Info("hello")
	require.NoError(t, closeFn())
	assert.FileExists(t, path)
}

func TestWireWithEverythingDisabled(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.JournalStore)
	assert.Nil(t, deps.QuoteCache)
	assert.Nil(t, deps.Locks)
	assert.Nil(t, deps.Blob)
	assert.NotNil(t, deps.Metrics)
	require.NotNil(t, deps.Notifier)
	assert.False(t, deps.Notifier.Enabled())
}

type fakeLease struct {
	refreshes atomic.Int32
	failAfter int32
}

func (l *fakeLease) Refresh(context.Context) error {
	if l.refreshes.Add(1) > l.failAfter {
		return errors.New("lock lost")
	}
	return nil
}

func (l *fakeLease) Release() {}

func TestKeepLeaseStopsWhenLost(t *testing.T) {
	cfg := config.Defaults()
	cfg.Redis.LockTTL.Duration = 0 // interval clamps to one second
	a := New(&cfg, slog.New(slog.DiscardHandler))

	lease := &fakeLease{failAfter: 0}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.keepLease(ctx, lease)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance lock lost")
}

func TestKeepLeaseReturnsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.keepLease(ctx, &fakeLease{failAfter: 100}))
}

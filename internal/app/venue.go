package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/engine"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/journal"
	"github.com/alanyoungcy/updownbot/internal/lifecycle"
	"github.com/alanyoungcy/updownbot/internal/platform/paper"
	"github.com/alanyoungcy/updownbot/internal/platform/polygon"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/strategy"
	"github.com/alanyoungcy/updownbot/internal/tick"
)

// venue is the market-facing half of the engine's dependencies.
type venue struct {
	ticks     domain.TickSource
	discovery domain.WindowDiscovery
	quotes    domain.QuoteSource
	oracle    domain.OutcomeOracle
	executor  domain.OrderExecutor
	redeemer  domain.Redeemer
	close     func()
}

// buildVenue returns the live exchange clients or the paper simulator,
// depending on the configured mode. Both use the real spot feed, Gamma
// discovery and CLOB books.
func (a *App) buildVenue(ctx context.Context, deps *Dependencies) (*venue, error) {
	cfg := a.cfg
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, a.logger)
	v := &venue{
		ticks:     feed.NewBinanceFeed(FeedConfig(cfg.Binance), a.logger),
		discovery: gamma,
		oracle:    gamma,
	}

	if cfg.Mode == config.ModePaper {
		books := polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil, nil, cfg.Polymarket.SignatureType, a.logger)
		sim := paper.NewExecutor(cfg.Paper.StartingBalance, books, gamma, a.logger)
		v.discovery = sim.TrackDiscovery(gamma)
		v.quotes = books
		v.executor = sim
		v.redeemer = sim
		a.logger.InfoContext(ctx, "paper trading", slog.Float64("starting_balance", cfg.Paper.StartingBalance))
		return v, nil
	}

	key, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: wallet: %w", err)
	}
	signer, err := crypto.NewSigner(key, int64(cfg.Polymarket.ChainID), cfg.Polymarket.ExchangeAddress)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	var auth *crypto.HMACAuth
	if cfg.Polymarket.APIKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.APIKey,
			Secret:     cfg.Polymarket.APISecret,
			Passphrase: cfg.Polymarket.APIPassphrase,
		}
	}
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, auth, cfg.Polymarket.SignatureType, a.logger)
	if auth == nil {
		if _, err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("app: derive api key: %w", err)
		}
		a.logger.InfoContext(ctx, "derived clob api credentials")
	}

	builder, err := polymarket.NewOrderBuilder(signer, cfg.Wallet.FunderAddress, cfg.Polymarket.SignatureType, cfg.Polymarket.FeeRateBps)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	v.quotes = clob
	v.executor = polymarket.NewExecutor(clob, builder, polymarket.NewDataClient(cfg.Polymarket.DataHost), a.logger)
	a.logger.InfoContext(ctx, "live trading",
		slog.String("signer", signer.Address().Hex()),
		slog.String("maker", builder.Maker()),
	)

	if cfg.Polygon.Redeem {
		rpc, err := ethclient.DialContext(ctx, cfg.Polygon.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("app: polygon rpc: %w", err)
		}
		redeemer, err := polygon.NewRedeemer(rpc, signer.PrivateKey(), PolygonConfig(cfg), a.logger)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		v.redeemer = redeemer
		v.close = rpc.Close
	}
	return v, nil
}

func newArchiver(w domain.BlobWriter, prefix string, jr *journal.Journal, logger *slog.Logger) *s3blob.JournalArchiver {
	return s3blob.NewJournalArchiver(w, prefix, jr.Path(), jr.SessionID(), logger)
}

// StrategyParams maps the strategy section onto generator parameters.
func StrategyParams(c config.StrategyConfig) strategy.Params {
	return strategy.Params{
		MomentumWeight:    c.MomentumWeight,
		MomentumClamp:     c.MomentumClamp,
		LogitClamp:        c.LogitClamp,
		ExecutionFriction: c.ExecutionFriction,
		BaseMinEdge:       c.BaseMinEdge,
		MaxStartEdge:      c.MaxStartEdge,
		WindowSeconds:     c.WindowSeconds,
		MinAsk:            c.MinAsk,
		MaxAsk:            c.MaxAsk,
		ToxicVelocity:     c.ToxicVelocity,
		MinVelocity:       c.MinVelocity,
		VelocityLookback:  c.VelocityLookback,
		KellyScalar:       c.KellyScalar,
		VolPenaltyFactor:  c.VolPenaltyFactor,
		VolPenaltyCap:     c.VolPenaltyCap,
		SniperMax:         c.SniperMax,
		SniperDivisor:     c.SniperDivisor,
		SniperMinVel:      c.SniperMinVel,
		MaxBetMultiple:    c.MaxBetMultiple,
		MinShares:         c.MinShares,
		MinEVUSDC:         c.MinEVUSDC,
		Tiers:             append([]float64(nil), c.Tiers...),
		TierRiskFraction:  c.TierRiskFraction,
		TierHysteresis:    c.TierHysteresis,
		EjectPrice:        c.EjectPrice,
	}
}

// LifecycleConfig maps the lifecycle section onto state machine limits.
func LifecycleConfig(c config.LifecycleConfig) lifecycle.Config {
	lc := lifecycle.DefaultConfig()
	lc.MaxTradesPerWindow = c.MaxTradesPerWindow
	lc.ExitCooldown = c.ExitCooldown.Duration
	lc.EntryBlackout = c.EntryBlackout.Duration
	lc.StaleTickAge = c.StaleTickAge.Duration
	lc.BreakerBlock = c.BreakerBlock.Duration
	lc.BasisSamples = c.BasisSamples
	return lc
}

// EngineConfig maps orchestration timings.
func EngineConfig(cfg *config.Config) engine.Config {
	l := cfg.Lifecycle
	return engine.Config{
		DiscoveryInterval: l.DiscoveryInterval.Duration,
		StatusInterval:    l.StatusInterval.Duration,
		EntrySlippage:     l.EntrySlippage,
		ExitSlippage:      l.ExitSlippage,
		OrderTimeout:      l.OrderTimeout.Duration,
		ShutdownTimeout:   l.ShutdownTimeout.Duration,
		BufferCapacity:    tick.LiveCapacity,
		OrderRateLimit:    l.OrderRateLimit,
		OrderRateWindow:   l.OrderRateWindow.Duration,
	}
}

// FeedConfig maps the binance section.
func FeedConfig(c config.BinanceConfig) feed.Config {
	return feed.Config{
		URL:               c.WSURL,
		ReconnectDelay:    c.ReconnectDelay.Duration,
		MaxReconnectDelay: c.MaxReconnectDelay.Duration,
		MaxFailures:       c.MaxFailures,
	}
}

// PolygonConfig maps the polygon section; the chain follows the exchange.
func PolygonConfig(cfg *config.Config) polygon.Config {
	pc := polygon.DefaultConfig()
	pc.ChainID = int64(cfg.Polymarket.ChainID)
	if cfg.Polygon.ConditionalTokens != "" {
		pc.ConditionalTokens = cfg.Polygon.ConditionalTokens
	}
	if cfg.Polygon.Collateral != "" {
		pc.Collateral = cfg.Polygon.Collateral
	}
	return pc
}

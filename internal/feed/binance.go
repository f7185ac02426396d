// Package feed streams BTC/USDT trade prints from the Binance aggTrade
// websocket into the engine.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DefaultURL is the public BTC/USDT aggregated trade stream.
const DefaultURL = "wss://stream.binance.com:9443/ws/btcusdt@aggTrade"

const (
	// writeWait is the time allowed to write a control frame to the peer.
	writeWait = 5 * time.Second

	// pingPeriod sends pings at this interval; a missing pong within
	// pongWait drops the connection.
	pingPeriod = 10 * time.Second
	pongWait   = pingPeriod + 5*time.Second

	handshakeTimeout = 10 * time.Second
)

// Config tunes the reconnect policy. MaxFailures is the number of
// consecutive failed connections after which Run gives up; zero retries
// forever.
type Config struct {
	URL               string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	MaxFailures       int
}

// DefaultConfig returns the live feed settings.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// BinanceFeed is a domain.TickSource over the aggTrade websocket. It
// reconnects with capped exponential backoff; the backoff resets whenever a
// connection delivered at least one trade.
type BinanceFeed struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewBinanceFeed creates a feed. Zero fields of cfg take their defaults.
func NewBinanceFeed(cfg Config, logger *slog.Logger) *BinanceFeed {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(def.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	return &BinanceFeed{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With(slog.String("component", "binance_feed")),
	}
}

// Run streams ticks into out until ctx is done or the reconnect budget is
// exhausted.
func (f *BinanceFeed) Run(ctx context.Context, out chan<- domain.Tick) error {
	delay := f.cfg.ReconnectDelay
	failures := 0
	for {
		n, err := f.runConnection(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n > 0 {
			delay = f.cfg.ReconnectDelay
			failures = 0
		} else {
			failures++
		}
		if f.cfg.MaxFailures > 0 && failures >= f.cfg.MaxFailures {
			return fmt.Errorf("feed: %w after %d attempts: %v", domain.ErrWSDisconnect, failures, err)
		}

		f.logger.WarnContext(ctx, "binance ws disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Int64("ticks", n),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, f.cfg.MaxReconnectDelay)
	}
}

// runConnection consumes one websocket session and returns the number of
// ticks it delivered.
func (f *BinanceFeed) runConnection(ctx context.Context, out chan<- domain.Tick) (int64, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.logger.InfoContext(ctx, "connected to binance aggTrade stream")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Closing the connection unblocks ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	var n int64
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return n, err
		}
		// Any frame proves the link is alive.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		t, err := ParseAggTrade(raw)
		if err != nil {
			f.logger.DebugContext(ctx, "skipping malformed aggTrade", slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- t:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

// aggTrade is the payload of one aggregated trade. Both "e" and "E" are
// declared so the case-insensitive decoder never cross-assigns them.
type aggTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// ErrNotTrade is returned for well-formed frames that are not trades, such
// as subscription acknowledgements.
var ErrNotTrade = errors.New("feed: not an aggTrade frame")

// ParseAggTrade decodes one aggTrade frame into a Tick stamped with the
// trade time.
func ParseAggTrade(raw []byte) (domain.Tick, error) {
	var m aggTrade
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Tick{}, fmt.Errorf("feed: decode: %w", err)
	}
	if m.EventType != "" && m.EventType != "aggTrade" {
		return domain.Tick{}, ErrNotTrade
	}
	if m.Price == "" || m.TradeTime == 0 {
		return domain.Tick{}, ErrNotTrade
	}
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil || price <= 0 {
		return domain.Tick{}, fmt.Errorf("feed: bad price %q", m.Price)
	}
	qty, err := strconv.ParseFloat(m.Quantity, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("feed: bad quantity %q", m.Quantity)
	}
	return domain.TickFromMillis(price, qty, m.TradeTime), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

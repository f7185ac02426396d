// Package journal keeps the append-only JSONL trade journal. Every trade
// produces an OPEN line at fill time and a CLOSE line when it is realized;
// each line is self-contained. Disk writes and mirroring happen on a
// background goroutine so callers never wait on I/O.
package journal

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// FileName is the journal file inside the journal directory.
const FileName = "trades.jsonl"

const (
	queueSize   = 1024
	sinkTimeout = 5 * time.Second
)

// Sink mirrors a journal entry somewhere else. Sinks run on the writer
// goroutine; a failing sink is logged and never blocks the file write.
type Sink func(ctx context.Context, e domain.JournalEntry) error

// Journal implements domain.TradeLog.
type Journal struct {
	sessionID string
	path      string
	file      *os.File
	sinks     []Sink
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*domain.JournalEntry
	closed  bool

	queue chan domain.JournalEntry
	done  chan struct{}
}

// Open appends to dir/trades.jsonl, creating the directory when needed.
func Open(dir string, logger *slog.Logger, sinks ...Sink) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	j := &Journal{
		path:    path,
		file:    f,
		sinks:   sinks,
		logger:  logger.With(slog.String("component", "journal")),
		now:     time.Now,
		pending: make(map[string]*domain.JournalEntry),
		queue:   make(chan domain.JournalEntry, queueSize),
		done:    make(chan struct{}),
	}
	j.sessionID = NewSessionID(j.now())
	go j.writer()

	j.logger.Info("journal opened", slog.String("path", path), slog.String("session_id", j.sessionID))
	return j, nil
}

// NewSessionID returns YYYYMMDD_HHMMSS_<6 hex> in UTC.
func NewSessionID(t time.Time) string {
	id := uuid.New()
	return t.UTC().Format("20060102_150405") + "_" + hex.EncodeToString(id[:3])
}

// SessionID identifies this process run in every journal line.
func (j *Journal) SessionID() string { return j.sessionID }

// Path is the JSONL file being appended to.
func (j *Journal) Path() string { return j.path }

// OpenTrade records a fill and returns the new trade id.
func (j *Journal) OpenTrade(p domain.OpenTradeParams) string {
	id := uuid.New()
	tradeID := hex.EncodeToString(id[:6])

	pos := p.Position
	e := domain.JournalEntry{
		SessionID:        j.sessionID,
		TradeID:          tradeID,
		TimestampOpen:    j.now().UTC().Format(time.RFC3339Nano),
		WindowStartPrice: p.WindowStartPrice,
		SignalSide:       string(p.Signal.Side),
		TrueProb:         round(p.Signal.TrueProb, 6),
		Edge:             round(p.Signal.Edge, 6),
		MicroVol:         round(p.Signal.MicroVol, 8),
		TickVelocity:     round(p.Signal.TickVelocity, 4),
		MomentumSign:     p.Signal.MomentumSign,
		BTCPriceAtEntry:  round(p.SpotAtEntry, 2),
		PositionSide:     string(pos.Side),
		EntryPrice:       round(pos.EntryPrice, 4),
		Shares:           int(pos.Shares),
		USDCRisked:       round(pos.SizeUSDC, 4),
		EventType:        domain.JournalOpen,
		ExpectedPrice:    round(p.ExpectedPrice, 4),
		SlippageCents:    round((pos.EntryPrice-p.ExpectedPrice)*100, 2),
	}
	if w := p.Window; w != nil {
		e.MarketQuestion = w.Question
		e.MarketSlug = w.Slug
		e.MarketEndDate = w.EndTime.UTC().Format(time.RFC3339)
	}

	j.mu.Lock()
	j.pending[tradeID] = &e
	j.mu.Unlock()
	j.enqueue(e)

	j.logger.Info("trade opened",
		slog.String("trade_id", tradeID),
		slog.String("side", e.PositionSide),
		slog.Float64("usdc", e.USDCRisked),
	)
	return tradeID
}

// CloseTrade records the outcome of a trade. An id this session never
// opened still gets a minimal CLOSE line.
func (j *Journal) CloseTrade(tradeID string, p domain.CloseTradeParams) {
	j.mu.Lock()
	open, ok := j.pending[tradeID]
	delete(j.pending, tradeID)
	j.mu.Unlock()

	var e domain.JournalEntry
	if ok {
		e = *open
	} else {
		e = domain.JournalEntry{SessionID: j.sessionID, TradeID: tradeID, TimestampOpen: "unknown"}
	}
	j.enqueue(closeEntry(e, p, j.now()))

	j.logger.Info("trade closed",
		slog.String("trade_id", tradeID),
		slog.String("side", e.PositionSide),
		slog.Bool("won", p.Won),
		slog.Float64("pnl", p.PnL),
		slog.String("reason", p.Reason),
	)
}

// CloseAllPending closes every open trade as a total loss with an unknown
// winner. Used at shutdown.
func (j *Journal) CloseAllPending(spot float64, reason string) {
	j.mu.Lock()
	open := make([]domain.JournalEntry, 0, len(j.pending))
	for _, e := range j.pending {
		open = append(open, *e)
	}
	j.mu.Unlock()

	for _, e := range open {
		j.CloseTrade(e.TradeID, domain.CloseTradeParams{
			SpotAtClose: spot,
			Winner:      "unknown",
			Won:         false,
			PnL:         -e.USDCRisked,
			Reason:      reason,
		})
	}
}

// Pending returns the number of trades opened but not yet closed.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Close stops accepting entries, waits for the writer to drain the queue
// and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.file.Close()
}

func closeEntry(e domain.JournalEntry, p domain.CloseTradeParams, now time.Time) domain.JournalEntry {
	spot := round(p.SpotAtClose, 2)
	won := p.Won
	pnl := round(p.PnL, 4)
	roi := 0.0
	if e.USDCRisked > 0 {
		roi = round(p.PnL/e.USDCRisked, 4)
	}

	e.EventType = domain.JournalClose
	e.TimestampClose = now.UTC().Format(time.RFC3339Nano)
	e.BTCPriceAtClose = &spot
	e.Winner = p.Winner
	e.Won = &won
	e.PnL = &pnl
	e.ROI = &roi
	e.ExitReason = p.Reason
	return e
}

func (j *Journal) enqueue(e domain.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.logger.Warn("journal closed, entry dropped", slog.String("trade_id", e.TradeID), slog.String("event", string(e.EventType)))
		return
	}
	select {
	case j.queue <- e:
	default:
		j.logger.Error("journal queue full, entry dropped", slog.String("trade_id", e.TradeID))
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	w := bufio.NewWriter(j.file)
	enc := json.NewEncoder(w)
	for e := range j.queue {
		if err := enc.Encode(e); err != nil {
			j.logger.Error("journal encode failed", slog.String("trade_id", e.TradeID), slog.String("error", err.Error()))
			continue
		}
		if err := w.Flush(); err != nil {
			j.logger.Error("journal write failed", slog.String("error", err.Error()))
		}
		j.mirror(e)
	}
}

func (j *Journal) mirror(e domain.JournalEntry) {
	for _, sink := range j.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink(ctx, e); err != nil {
			j.logger.Warn("journal mirror failed", slog.String("trade_id", e.TradeID), slog.String("error", err.Error()))
		}
		cancel()
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// JournalStore implements domain.JournalStore on the trade_journal table.
// One row per trade: the OPEN line inserts it and the CLOSE line fills in
// the outcome columns.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

const journalCols = `trade_id, session_id, event_type, timestamp_open, timestamp_close,
	market_question, market_slug, market_end_date, window_start_price,
	signal_side, true_prob, edge, micro_vol, tick_velocity, momentum_sign,
	btc_price_at_entry, position_side, entry_price, shares, usdc_risked,
	expected_price, slippage_cents, btc_price_at_close, winner, won, pnl, roi,
	exit_reason`

// Upsert inserts the entry or, for a trade already stored, updates its
// event type and outcome columns. Entry columns of an existing row are
// left alone so a minimal CLOSE cannot blank them.
func (s *JournalStore) Upsert(ctx context.Context, e domain.JournalEntry) error {
	const query = `
		INSERT INTO trade_journal (` + journalCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		ON CONFLICT (trade_id) DO UPDATE SET
			event_type         = EXCLUDED.event_type,
			timestamp_close    = EXCLUDED.timestamp_close,
			btc_price_at_close = EXCLUDED.btc_price_at_close,
			winner             = EXCLUDED.winner,
			won                = EXCLUDED.won,
			pnl                = EXCLUDED.pnl,
			roi                = EXCLUDED.roi,
			exit_reason        = EXCLUDED.exit_reason,
			updated_at         = NOW()`

	_, err := s.pool.Exec(ctx, query,
		e.TradeID, e.SessionID, string(e.EventType), e.TimestampOpen, nullString(e.TimestampClose),
		e.MarketQuestion, e.MarketSlug, e.MarketEndDate, e.WindowStartPrice,
		e.SignalSide, e.TrueProb, e.Edge, e.MicroVol, e.TickVelocity, e.MomentumSign,
		e.BTCPriceAtEntry, e.PositionSide, e.EntryPrice, e.Shares, e.USDCRisked,
		e.ExpectedPrice, e.SlippageCents, e.BTCPriceAtClose, nullString(e.Winner), e.Won, e.PnL, e.ROI,
		nullString(e.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert journal %s: %w", e.TradeID, err)
	}
	return nil
}

// ListRecent returns the most recently touched trades, newest first.
func (s *JournalStore) ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+journalCols+` FROM trade_journal ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()

	entries, err := scanJournalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan journal: %w", err)
	}
	return entries, nil
}

func scanJournalRows(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for rows.Next() {
		var (
			e                           domain.JournalEntry
			event                       string
			tsClose, winner, exitReason *string
		)
		if err := rows.Scan(
			&e.TradeID, &e.SessionID, &event, &e.TimestampOpen, &tsClose,
			&e.MarketQuestion, &e.MarketSlug, &e.MarketEndDate, &e.WindowStartPrice,
			&e.SignalSide, &e.TrueProb, &e.Edge, &e.MicroVol, &e.TickVelocity, &e.MomentumSign,
			&e.BTCPriceAtEntry, &e.PositionSide, &e.EntryPrice, &e.Shares, &e.USDCRisked,
			&e.ExpectedPrice, &e.SlippageCents, &e.BTCPriceAtClose, &winner, &e.Won, &e.PnL, &e.ROI,
			&exitReason,
		); err != nil {
			return nil, err
		}
		e.EventType = domain.JournalEvent(event)
		e.TimestampClose = deref(tsClose)
		e.Winner = deref(winner)
		e.ExitReason = deref(exitReason)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.JournalStore = (*JournalStore)(nil)

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/engine"
)

// TradeLister is the read side of the journal store.
type TradeLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.JournalEntry, error)
}

// TradesHandler lists recent trades from the journal store, or from the
// session history when no store is configured.
type TradesHandler struct {
	store  TradeLister
	status func() *engine.Status
	logger *slog.Logger
}

// NewTradesHandler creates a TradesHandler. store may be nil.
func NewTradesHandler(store TradeLister, status func() *engine.Status, logger *slog.Logger) *TradesHandler {
	return &TradesHandler{store: store, status: status, logger: logger.With(slog.String("handler", "trades"))}
}

// ListTrades responds with up to ?limit= trades, newest first.
// GET /api/trades
func (h *TradesHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	if h.store != nil {
		entries, err := h.store.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list trades")
			return
		}
		if entries == nil {
			entries = []domain.JournalEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": "journal", "trades": entries})
		return
	}

	var recent []domain.TradeRecord
	if s := h.status(); s != nil {
		recent = slices.Clone(s.Recent)
	}
	slices.Reverse(recent)
	if len(recent) > limit {
		recent = recent[:limit]
	}
	if recent == nil {
		recent = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": "session", "trades": recent})
}

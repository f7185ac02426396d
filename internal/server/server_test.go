package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/engine"
)

type fakeTrades struct {
	entries []domain.JournalEntry
	err     error
	limit   int
}

func (f *fakeTrades) ListRecent(_ context.Context, limit int) ([]domain.JournalEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyAll) Wait(context.Context, string, int, time.Duration) error          { return nil }

func snapshot() *engine.Status {
	return &engine.Status{
		UpdatedAt: time.Now(),
		State:     "IDLE",
		Balance:   42,
		Recent: []domain.TradeRecord{
			{TradeID: "a", PnL: 1},
			{TradeID: "b", PnL: -2},
			{TradeID: "c", PnL: 3},
		},
	}
}

func do(t *testing.T, h http.Handler, path string, header ...string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func newServer(cfg Config, deps Deps) http.Handler {
	return New(cfg, deps, slog.New(slog.DiscardHandler)).Handler()
}

func TestHealth(t *testing.T) {
	s := snapshot()
	h := newServer(Config{}, Deps{Mode: "paper", Status: func() *engine.Status { return s }})

	code, body := do(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "paper", body["mode"])

	s.UpdatedAt = time.Now().Add(-time.Minute)
	code, body = do(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "stale", body["status"])
}

func TestStatus(t *testing.T) {
	var s *engine.Status
	h := newServer(Config{}, Deps{Mode: "live", Status: func() *engine.Status { return s }})

	code, _ := do(t, h, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	s = snapshot()
	code, body := do(t, h, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "live", body["mode"])
	assert.Equal(t, "IDLE", body["state"])
	assert.Equal(t, 42.0, body["balance"])
}

func TestTradesFromStore(t *testing.T) {
	store := &fakeTrades{entries: []domain.JournalEntry{{TradeID: "x", EventType: domain.JournalClose}}}
	h := newServer(Config{}, Deps{Status: snapshot, Trades: store})

	code, body := do(t, h, "/api/trades?limit=900")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "journal", body["source"])
	assert.Equal(t, 500, store.limit)
	trades := body["trades"].([]any)
	require.Len(t, trades, 1)
	assert.Equal(t, "x", trades[0].(map[string]any)["trade_id"])
}

func TestTradesStoreError(t *testing.T) {
	h := newServer(Config{}, Deps{Status: snapshot, Trades: &fakeTrades{err: errors.New("db down")}})
	code, body := do(t, h, "/api/trades")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "failed to list trades", body["error"])
}

func TestTradesSessionFallback(t *testing.T) {
	s := snapshot()
	h := newServer(Config{}, Deps{Status: func() *engine.Status { return s }})

	code, body := do(t, h, "/api/trades?limit=2")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "session", body["source"])
	trades := body["trades"].([]any)
	require.Len(t, trades, 2)
	assert.Equal(t, "c", trades[0].(map[string]any)["trade_id"])
	assert.Equal(t, "b", trades[1].(map[string]any)["trade_id"])
	assert.Equal(t, "a", s.Recent[0].TradeID, "snapshot must not be mutated")
}

func TestAuth(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "updown_ticks_total 1\n")
	})
	h := newServer(Config{APIKey: "k"}, Deps{Status: snapshot, Metrics: metrics})

	code, _ := do(t, h, "/api/status")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, h, "/api/status", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, h, "/api/status", "Authorization", "Bearer k")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestRateLimit(t *testing.T) {
	h := newServer(Config{RateLimit: 1, RateWindow: time.Second}, Deps{Status: snapshot, Limiter: denyAll{}})
	code, body := do(t, h, "/api/status")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{Status: snapshot}, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

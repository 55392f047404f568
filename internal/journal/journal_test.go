package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestStoreAndFetchLatestPrice(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	ts := time.Now()
	require.NoError(t, j.StoreUnified(ctx, model.UnifiedTick{Symbol: "BTCUSDT", Timestamp: ts, Price: 100}))
	require.NoError(t, j.StoreUnified(ctx, model.UnifiedTick{Symbol: "BTCUSDT", Timestamp: ts.Add(time.Second), Price: 105}))

	price, _, err := j.LatestPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 105.0, price)
}

func TestSeenRecentSignalDedup(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	sig := model.Signal{Timestamp: time.Now(), Symbol: "BTCUSDT", Type: model.SignalEntry, Score: 70, EntryPrice: 100, DedupHash: "abc123"}
	require.NoError(t, j.StoreSignal(ctx, sig))

	seen, err := j.SeenRecentSignal(ctx, "abc123", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, seen)

	notSeen, err := j.SeenRecentSignal(ctx, "other-hash", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, notSeen)
}

func TestOpenUpdateAndClosePosition(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	now := time.Now()

	pos := model.Position{Symbol: "BTCUSDT", EntryTS: now, EntryPrice: 100, Status: model.PositionOpen, BestLow: 100}
	require.NoError(t, j.OpenPosition(ctx, pos))

	open, found, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 100.0, open.EntryPrice)

	require.NoError(t, j.UpdateBestLow(ctx, "BTCUSDT", 97.5))

	closed := open
	closed.BestLow = 97.5
	closed.ExitTS = now.Add(time.Minute)
	closed.ExitPrice = 98.0
	closed.ExitReason = "trailing_giveback"
	closed.PnLPct = 2.0
	require.NoError(t, j.ClosePosition(ctx, closed))

	_, stillOpen, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.False(t, stillOpen)
}

func TestPruneOldRemovesStaleRows(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, j.StoreUnified(ctx, model.UnifiedTick{Symbol: "BTCUSDT", Timestamp: old, Price: 50}))
	require.NoError(t, j.StoreUnified(ctx, model.UnifiedTick{Symbol: "BTCUSDT", Timestamp: time.Now(), Price: 100}))

	require.NoError(t, j.PruneOld(ctx, 7*24*time.Hour))

	price, _, err := j.LatestPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, 100.0, price)
}

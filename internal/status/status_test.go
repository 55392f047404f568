package status

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/journal"
	"github.com/sawpanic/shortsentinel/internal/model"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestBuildReportEmptyJournal(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	r, err := Build(ctx, j, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 9999*time.Second, r.TickAge)
	require.Empty(t, r.TopSymbols)
}

func TestBuildReportRanksSymbolsByAvgScore(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	now := time.Now()

	low := model.Score{Symbol: "ETHUSDT", Timestamp: now, Value: 40}
	high := model.Score{Symbol: "BTCUSDT", Timestamp: now, Value: 80}
	require.NoError(t, j.StoreFeatures(ctx, low))
	require.NoError(t, j.StoreFeatures(ctx, high))
	require.NoError(t, j.StoreUnified(ctx, model.UnifiedTick{Symbol: "BTCUSDT", Timestamp: now, Price: 101.5}))

	opts := DefaultOptions()
	r, err := Build(ctx, j, opts)
	require.NoError(t, err)
	require.Len(t, r.TopSymbols, 2)
	require.Equal(t, "BTCUSDT", r.TopSymbols[0].Symbol)
	require.Equal(t, 80.0, r.BestScore)
	require.Equal(t, 101.5, r.TopPrices["BTCUSDT"])

	var buf bytes.Buffer
	r.Write(&buf)
	require.Contains(t, buf.String(), "BTCUSDT")
}

// Package journal implements the Journal (C8): a single-writer embedded
// relational store for ticks, features, signals, positions, and ranks.
//
// Schema and query behavior are ported exactly from
// original_source/storage/sqlite_cache.py's SQLiteCache. The connection/
// config shape follows the teacher's internal/infrastructure/db package
// (sqlx + a Config/Manager split), adapted from a Postgres server
// connection to an embedded modernc.org/sqlite file with WAL journaling —
// see DESIGN.md for why lib/pq was dropped in favor of this driver.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/sawpanic/shortsentinel/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	ts    REAL    NOT NULL,
	ex    TEXT    NOT NULL,
	sym   TEXT    NOT NULL,
	price REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_sym_ts ON ticks(sym, ts);

CREATE TABLE IF NOT EXISTS features (
	ts   REAL NOT NULL,
	sym  TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_features_sym_ts ON features(sym, ts);

CREATE TABLE IF NOT EXISTS signals (
	ts          REAL NOT NULL,
	sym         TEXT NOT NULL,
	score       REAL NOT NULL,
	entry_price REAL NOT NULL,
	reason      TEXT,
	dedup_hash  TEXT,
	signal_type TEXT NOT NULL DEFAULT 'entry'
);
CREATE INDEX IF NOT EXISTS idx_signals_sym_ts ON signals(sym, ts);
CREATE INDEX IF NOT EXISTS idx_signals_hash ON signals(dedup_hash);

CREATE TABLE IF NOT EXISTS positions (
	sym         TEXT PRIMARY KEY,
	entry_ts    REAL NOT NULL,
	entry_price REAL NOT NULL,
	status      TEXT NOT NULL,
	best_low    REAL NOT NULL,
	exit_ts     REAL,
	exit_price  REAL,
	exit_reason TEXT,
	pnl_pct     REAL
);

CREATE TABLE IF NOT EXISTS ranks (
	ts    REAL NOT NULL,
	sym   TEXT NOT NULL,
	score REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ranks_ts ON ranks(ts);

CREATE TABLE IF NOT EXISTS unified_ticks (
	ts        REAL NOT NULL,
	sym       TEXT NOT NULL,
	price     REAL NOT NULL,
	mark      REAL,
	funding   REAL,
	oi        REAL,
	spread    REAL,
	volume    REAL,
	bid_total REAL,
	ask_total REAL,
	imbalance REAL,
	UNIQUE(sym, ts)
);
CREATE INDEX IF NOT EXISTS idx_unified_sym_ts ON unified_ticks(sym, ts);

CREATE TABLE IF NOT EXISTS journal_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Journal is the durable store for one engine instance. All write calls
// come from the orchestrator's single consumer loop; SQLite's own
// single-writer semantics under WAL are sufficient, no extra locking is
// added here.
type Journal struct {
	db *sqlx.DB
}

// Open connects to (and creates, if absent) the SQLite file at path, enables
// WAL journaling, applies the schema, and records a crash-recovery marker.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single embedded writer

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	startID := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO journal_meta(key, value) VALUES ('last_start_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, startID); err != nil {
		return nil, fmt.Errorf("record startup marker: %w", err)
	}
	log.Info().Str("journal_path", path).Str("start_id", startID).Msg("journal opened")

	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StoreTick records one raw per-venue price observation.
func (j *Journal) StoreTick(ctx context.Context, ts time.Time, venue, symbol string, price float64) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO ticks(ts, ex, sym, price) VALUES (?, ?, ?, ?)`,
		unixSeconds(ts), venue, symbol, price)
	if err != nil {
		return fmt.Errorf("store tick: %w", err)
	}
	return nil
}

// StoreFeatures persists a FeatureVector as its JSON encoding alongside the
// score, matching sqlite_cache.py's store_features(data) blob shape.
func (j *Journal) StoreFeatures(ctx context.Context, s model.Score) error {
	payload := struct {
		Score float64             `json:"score"`
		model.FeatureVector       `json:"features"`
	}{Score: s.Value, FeatureVector: s.Features}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `INSERT INTO features(ts, sym, data) VALUES (?, ?, ?)`,
		unixSeconds(s.Timestamp), s.Symbol, string(data))
	if err != nil {
		return fmt.Errorf("store features: %w", err)
	}
	return nil
}

// StoreUnified upserts the latest unified tick for (sym, ts).
func (j *Journal) StoreUnified(ctx context.Context, t model.UnifiedTick) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO unified_ticks(ts, sym, price, mark, funding, oi, spread, volume, bid_total, ask_total, imbalance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sym, ts) DO UPDATE SET
			price = excluded.price, mark = excluded.mark, funding = excluded.funding,
			oi = excluded.oi, spread = excluded.spread, volume = excluded.volume,
			bid_total = excluded.bid_total, ask_total = excluded.ask_total, imbalance = excluded.imbalance`,
		unixSeconds(t.Timestamp), t.Symbol, t.Price, t.Mark,
		nullableFloat(t.Funding, t.FundingSet), nullableFloat(t.OI, t.OISet),
		t.Spread, t.BidTotal+t.AskTotal, t.BidTotal, t.AskTotal, t.Imbalance)
	if err != nil {
		return fmt.Errorf("store unified tick: %w", err)
	}
	return nil
}

// StoreSignal records an entry or exit signal row.
func (j *Journal) StoreSignal(ctx context.Context, s model.Signal) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO signals(ts, sym, score, entry_price, reason, dedup_hash, signal_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		unixSeconds(s.Timestamp), s.Symbol, s.Score, s.EntryPrice, s.Reason, s.DedupHash, string(s.Type))
	if err != nil {
		return fmt.Errorf("store signal: %w", err)
	}
	return nil
}

// SeenRecentSignal reports whether hash was already recorded within window.
func (j *Journal) SeenRecentSignal(ctx context.Context, hash string, window time.Duration) (bool, error) {
	cutoff := unixSeconds(time.Now().Add(-window))
	var count int
	err := j.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM signals WHERE dedup_hash = ? AND ts >= ?`, hash, cutoff)
	if err != nil {
		return false, fmt.Errorf("query recent signal: %w", err)
	}
	return count > 0, nil
}

// SeenRecentSymbolSignal reports whether symbol produced a signal of
// signalType within window (used to enforce the entry cooldown durably
// across restarts, complementing the in-memory cooldown in internal/trigger).
func (j *Journal) SeenRecentSymbolSignal(ctx context.Context, symbol string, signalType model.SignalType, window time.Duration) (bool, error) {
	cutoff := unixSeconds(time.Now().Add(-window))
	var count int
	err := j.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM signals WHERE sym = ? AND signal_type = ? AND ts >= ?`, symbol, string(signalType), cutoff)
	if err != nil {
		return false, fmt.Errorf("query recent symbol signal: %w", err)
	}
	return count > 0, nil
}

// OpenPosition inserts a new open position row.
func (j *Journal) OpenPosition(ctx context.Context, pos model.Position) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO positions(sym, entry_ts, entry_price, status, best_low)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sym) DO UPDATE SET
			entry_ts = excluded.entry_ts, entry_price = excluded.entry_price,
			status = excluded.status, best_low = excluded.best_low,
			exit_ts = NULL, exit_price = NULL, exit_reason = NULL, pnl_pct = NULL`,
		pos.Symbol, unixSeconds(pos.EntryTS), pos.EntryPrice, string(model.PositionOpen), pos.BestLow)
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	return nil
}

// UpdateBestLow advances the trailing-stop low-water mark for an open
// position.
func (j *Journal) UpdateBestLow(ctx context.Context, symbol string, bestLow float64) error {
	_, err := j.db.ExecContext(ctx, `UPDATE positions SET best_low = ? WHERE sym = ? AND status = ?`,
		bestLow, symbol, string(model.PositionOpen))
	if err != nil {
		return fmt.Errorf("update best low: %w", err)
	}
	return nil
}

// ClosePosition marks a position closed and stores the exit fields and the
// realized PnL already set on pos.
func (j *Journal) ClosePosition(ctx context.Context, pos model.Position) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, exit_ts = ?, exit_price = ?, exit_reason = ?, pnl_pct = ?, best_low = ?
		WHERE sym = ?`,
		string(model.PositionClosed), unixSeconds(pos.ExitTS), pos.ExitPrice, pos.ExitReason, pos.PnLPct, pos.BestLow, pos.Symbol)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	return nil
}

type positionRow struct {
	Symbol     string  `db:"sym"`
	EntryTS    float64 `db:"entry_ts"`
	EntryPrice float64 `db:"entry_price"`
	Status     string  `db:"status"`
	BestLow    float64 `db:"best_low"`
}

// GetOpenPosition returns the open position for symbol, if any.
func (j *Journal) GetOpenPosition(ctx context.Context, symbol string) (model.Position, bool, error) {
	var row positionRow
	err := j.db.GetContext(ctx, &row,
		`SELECT sym, entry_ts, entry_price, status, best_low FROM positions WHERE sym = ? AND status = ?`,
		symbol, string(model.PositionOpen))
	if err == sql.ErrNoRows {
		return model.Position{}, false, nil
	}
	if err != nil {
		return model.Position{}, false, fmt.Errorf("get open position: %w", err)
	}
	return model.Position{
		Symbol:     row.Symbol,
		EntryTS:    time.Unix(int64(row.EntryTS), 0),
		EntryPrice: row.EntryPrice,
		Status:     model.PositionStatus(row.Status),
		BestLow:    row.BestLow,
	}, true, nil
}

// StoreRank records one symbol's rank-ordering score for a scan cycle.
func (j *Journal) StoreRank(ctx context.Context, ts time.Time, symbol string, score float64) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO ranks(ts, sym, score) VALUES (?, ?, ?)`,
		unixSeconds(ts), symbol, score)
	if err != nil {
		return fmt.Errorf("store rank: %w", err)
	}
	return nil
}

// LatestPrice returns the most recent unified price recorded for symbol.
func (j *Journal) LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var row struct {
		Price float64 `db:"price"`
		TS    float64 `db:"ts"`
	}
	err := j.db.GetContext(ctx, &row,
		`SELECT price, ts FROM unified_ticks WHERE sym = ? ORDER BY ts DESC LIMIT 1`, symbol)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("latest price: %w", err)
	}
	return row.Price, time.Unix(int64(row.TS), 0), nil
}

// Counts reports total row counts for the engine's time-series tables,
// matching status_check.py's unified/feature/signal/position counters.
type Counts struct {
	Ticks        int64
	Features     int64
	Signals      int64
	Positions    int64
	UnifiedTicks int64
}

// Counts returns current row counts across the journal's tables.
func (j *Journal) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := map[string]*int64{
		"ticks":         &c.Ticks,
		"features":      &c.Features,
		"signals":       &c.Signals,
		"positions":     &c.Positions,
		"unified_ticks": &c.UnifiedTicks,
	}
	for table, dest := range queries {
		if err := j.db.GetContext(ctx, dest, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", table, err)
		}
	}
	return c, nil
}

// LatestTimestamp returns the most recent ts recorded in table, or the zero
// time if the table is empty.
func (j *Journal) LatestTimestamp(ctx context.Context, table string) (time.Time, error) {
	var ts sql.NullFloat64
	if err := j.db.GetContext(ctx, &ts, fmt.Sprintf(`SELECT MAX(ts) FROM %s`, table)); err != nil {
		return time.Time{}, fmt.Errorf("latest ts %s: %w", table, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(int64(ts.Float64), 0), nil
}

// SymbolScore is one symbol's average score over a lookback window.
type SymbolScore struct {
	Symbol   string
	AvgScore float64
	Samples  int
}

// RecentAverageScores returns the average feature score per symbol over the
// last `lookback`, ranked descending, mirroring status_check.py's
// symbol_scores aggregation.
func (j *Journal) RecentAverageScores(ctx context.Context, lookback time.Duration, rowLimit int) ([]SymbolScore, error) {
	cutoff := unixSeconds(time.Now().Add(-lookback))
	rows, err := j.db.QueryContext(ctx,
		`SELECT sym, data FROM features WHERE ts > ? ORDER BY ts DESC LIMIT ?`, cutoff, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("recent features: %w", err)
	}
	defer rows.Close()

	type acc struct {
		sum   float64
		count int
	}
	bySymbol := make(map[string]*acc)
	var order []string
	for rows.Next() {
		var sym, data string
		if err := rows.Scan(&sym, &data); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		var blob struct {
			Score float64 `json:"score"`
		}
		if err := json.Unmarshal([]byte(data), &blob); err != nil {
			continue
		}
		if bySymbol[sym] == nil {
			bySymbol[sym] = &acc{}
			order = append(order, sym)
		}
		bySymbol[sym].sum += blob.Score
		bySymbol[sym].count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	scores := make([]SymbolScore, 0, len(order))
	for _, sym := range order {
		a := bySymbol[sym]
		scores = append(scores, SymbolScore{Symbol: sym, AvgScore: a.sum / float64(a.count), Samples: a.count})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].AvgScore > scores[j].AvgScore })
	return scores, nil
}

// RecentUnifiedPrice returns the latest unified price for symbol recorded
// after windowStart, or false if none exists.
func (j *Journal) RecentUnifiedPrice(ctx context.Context, symbol string, windowStart time.Time) (float64, bool, error) {
	var row struct {
		Price sql.NullFloat64 `db:"price"`
		Mark  sql.NullFloat64 `db:"mark"`
	}
	err := j.db.GetContext(ctx, &row,
		`SELECT price, mark FROM unified_ticks WHERE sym = ? AND ts > ? ORDER BY ts DESC LIMIT 1`,
		symbol, unixSeconds(windowStart))
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("recent unified price: %w", err)
	}
	if row.Price.Valid {
		return row.Price.Float64, true, nil
	}
	if row.Mark.Valid {
		return row.Mark.Float64, true, nil
	}
	return 0, false, nil
}

// PruneOld deletes rows older than the given retention window across every
// time-series table, matching sqlite_cache.py's prune_old(days=7).
func (j *Journal) PruneOld(ctx context.Context, retention time.Duration) error {
	cutoff := unixSeconds(time.Now().Add(-retention))
	tables := []string{"ticks", "features", "signals", "ranks", "unified_ticks"}
	for _, table := range tables {
		if _, err := j.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ts < ?`, table), cutoff); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func nullableFloat(v float64, set bool) any {
	if !set {
		return nil
	}
	return v
}

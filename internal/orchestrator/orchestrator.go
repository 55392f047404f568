// Package orchestrator implements the Orchestrator (C9): the single
// consumer loop that drains the Data Hub's unified-tick queue and drives it
// through the feature pipeline, scorer, entry trigger, exit manager, and
// journal.
//
// This is the canonical unified-tick orchestrator named in spec.md §9's
// design notes (orchestrator.engine.Orchestrator), a direct port of
// original_source/orchestrator/engine.py's Orchestrator._consume/_check_trailing/
// _btc_loop/run. The parallel per-symbol REST fan-out orchestrator
// (app.orchestrator) is not carried.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/shortsentinel/internal/btcregime"
	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/exit"
	"github.com/sawpanic/shortsentinel/internal/features"
	"github.com/sawpanic/shortsentinel/internal/journal"
	"github.com/sawpanic/shortsentinel/internal/metrics"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/notifier"
	"github.com/sawpanic/shortsentinel/internal/scoring"
	"github.com/sawpanic/shortsentinel/internal/symbols"
	"github.com/sawpanic/shortsentinel/internal/trigger"
	"github.com/sawpanic/shortsentinel/internal/venue"
)

const writeTimeout = 5 * time.Second

// UnifiedSource is the read side of the Data Hub's bounded output queue.
// Satisfied by *hub.Hub's Out() method; accepted as an interface so tests
// can drive the orchestrator off a plain channel.
type UnifiedSource interface {
	Out() <-chan model.UnifiedTick
}

// Orchestrator wires the Feature Pipeline, Scorer, Entry Trigger, Exit
// Manager, and Journal around the hub's unified-tick stream. It is the sole
// owner of the feature pipeline's rolling state (spec.md §3 Lifecycle and
// ownership), so Run must not be called concurrently from more than one
// goroutine.
type Orchestrator struct {
	cfg config.Config

	source   UnifiedSource
	universe *symbols.Universe
	pipeline *features.Pipeline
	btc      *btcregime.Regime
	trig     *trigger.Trigger
	exitMgr  *exit.Manager
	journal  *journal.Journal
	notify   notifier.Notifier
	metrics  *metrics.Registry

	btcAlignment float64
}

// New builds an Orchestrator. metricsReg may be nil, in which case
// instrumentation is skipped.
func New(
	cfg config.Config,
	source UnifiedSource,
	universe *symbols.Universe,
	j *journal.Journal,
	notify notifier.Notifier,
	metricsReg *metrics.Registry,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		source:   source,
		universe: universe,
		pipeline: features.New(),
		btc:      btcregime.New(),
		trig:     trigger.New(cfg),
		exitMgr:  exit.New(cfg),
		journal:  j,
		notify:   notify,
		metrics:  metricsReg,
	}
}

// RunBTCPoll polls the BTC regime tracker every 30s until ctx is canceled,
// publishing alignment updates to the orchestrator's consumer loop.
// Grounded on original_source/orchestrator/engine.py's _btc_loop.
func (o *Orchestrator) RunBTCPoll(ctx context.Context, client *venue.RESTClient) {
	updates := make(chan float64, 1)
	go func() {
		if err := o.btc.Poll(ctx, client, updates); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("btc regime poll loop exited")
		}
		close(updates)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			o.btcAlignment = v
			if o.metrics != nil {
				o.metrics.BTCAlignment.Set(v)
			}
		}
	}
}

// Run drains the hub's unified-tick queue until ctx is canceled or the
// source channel closes. This is the engine's single consumer loop —
// spec.md §5 relies on this being the only goroutine that touches the
// feature pipeline, entry trigger, and exit manager state.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-o.source.Out():
			if !ok {
				return nil
			}
			if o.metrics != nil {
				o.metrics.QueueDepth.Set(float64(len(o.source.Out())))
			}
			o.handleTick(ctx, tick)
		}
	}
}

// handleTick is the per-event body of the consumer loop, mirroring
// original_source/orchestrator/engine.py's _consume.
func (o *Orchestrator) handleTick(ctx context.Context, tick model.UnifiedTick) {
	if !o.universe.Contains(tick.Symbol) {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := o.journal.StoreUnified(writeCtx, tick); err != nil {
		log.Error().Err(err).Str("symbol", tick.Symbol).Msg("store unified tick failed")
	}

	if tick.Price > 0 {
		o.checkTrailing(writeCtx, tick.Symbol, tick.Price)
	}

	fv := o.pipeline.Compute(tick, o.btcAlignment)
	score := scoring.Score(fv)
	if err := scoring.ValidateScore(score); err != nil {
		log.Error().Err(err).Str("symbol", tick.Symbol).Msg("invalid score, skipping entry evaluation")
		return
	}

	if err := o.journal.StoreFeatures(writeCtx, score); err != nil {
		log.Error().Err(err).Str("symbol", tick.Symbol).Msg("store features failed")
	}
	if err := o.journal.StoreRank(writeCtx, score.Timestamp, score.Symbol, score.Value); err != nil {
		log.Error().Err(err).Str("symbol", tick.Symbol).Msg("store rank failed")
	}

	o.evaluateEntry(writeCtx, fv, score, tick.Price)
}

// checkTrailing runs the Exit Manager against the open position for symbol
// (if any), persisting the updated best-low and closing the position on an
// exit signal. Grounded on engine.py's _check_trailing.
func (o *Orchestrator) checkTrailing(ctx context.Context, symbol string, price float64) {
	pos, open, err := o.journal.GetOpenPosition(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("get open position failed")
		return
	}
	if !open {
		return
	}

	result := o.exitMgr.TrailingForShort(pos.EntryPrice, price, pos.BestLow)
	if result.UpdatedBestLow != pos.BestLow {
		if err := o.journal.UpdateBestLow(ctx, symbol, result.UpdatedBestLow); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("update best low failed")
		}
		pos.BestLow = result.UpdatedBestLow
	}

	if !result.ShouldExit {
		return
	}

	closed := exit.Close(pos, result, price, time.Now())
	if err := o.journal.ClosePosition(ctx, closed); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("close position failed")
		return
	}

	exitSignal := model.Signal{
		Timestamp:  closed.ExitTS,
		Symbol:     symbol,
		Type:       model.SignalExit,
		Score:      0,
		EntryPrice: closed.ExitPrice,
		Reason:     "exit_" + closed.ExitReason,
	}
	if err := o.journal.StoreSignal(ctx, exitSignal); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("store exit signal failed")
	}
	if o.metrics != nil {
		o.metrics.RecordSignal("exit")
	}
	if err := o.notify.SendExit(ctx, closed); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("notify exit failed")
	}

	log.Info().
		Str("symbol", symbol).
		Str("reason", closed.ExitReason).
		Float64("pnl_pct", closed.PnLPct).
		Float64("exit_price", closed.ExitPrice).
		Msg("position closed")
}

// evaluateEntry runs the Entry Trigger gate plus the orchestrator-level
// gates (score floor, max price, no existing position, durable cooldown)
// and opens a position on a pass. Grounded on engine.py's entry-check block.
func (o *Orchestrator) evaluateEntry(ctx context.Context, fv model.FeatureVector, score model.Score, price float64) {
	if score.Value < o.cfg.ScoreMin {
		return
	}
	if o.cfg.MaxPrice > 0 && price > o.cfg.MaxPrice {
		return
	}

	_, open, err := o.journal.GetOpenPosition(ctx, fv.Symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", fv.Symbol).Msg("get open position failed")
		return
	}
	if open {
		return
	}

	seenRecently, err := o.journal.SeenRecentSymbolSignal(ctx, fv.Symbol, model.SignalEntry, o.cfg.EntryCooldown)
	if err != nil {
		log.Error().Err(err).Str("symbol", fv.Symbol).Msg("seen recent symbol signal query failed")
		return
	}
	if seenRecently {
		log.Info().Str("symbol", fv.Symbol).Dur("cooldown", o.cfg.EntryCooldown).Msg("entry cooldown active, skipping")
		return
	}

	now := time.Now()
	decision := o.trig.Evaluate(fv, score, price, now)
	if !decision.Proceed {
		if decision.SkipReason != "" {
			log.Info().Str("symbol", fv.Symbol).Str("skip_reason", decision.SkipReason).Msg("entry gate skipped")
		}
		return
	}

	dupe, err := o.journal.SeenRecentSignal(ctx, decision.DedupHash, 900*time.Second)
	if err != nil {
		log.Error().Err(err).Str("symbol", fv.Symbol).Msg("seen recent signal query failed")
		return
	}
	if dupe {
		log.Info().Str("symbol", fv.Symbol).Str("dedup_hash", decision.DedupHash).Msg("duplicate signal suppressed")
		return
	}

	pos := exit.Open(fv.Symbol, price, now)
	if err := o.journal.OpenPosition(ctx, pos); err != nil {
		log.Error().Err(err).Str("symbol", fv.Symbol).Msg("open position failed")
		return
	}

	signal := model.Signal{
		Timestamp:  now,
		Symbol:     fv.Symbol,
		Type:       model.SignalEntry,
		Score:      score.Value,
		EntryPrice: price,
		Reason:     "entry",
		DedupHash:  decision.DedupHash,
	}
	if err := o.journal.StoreSignal(ctx, signal); err != nil {
		log.Error().Err(err).Str("symbol", fv.Symbol).Msg("store entry signal failed")
	}

	o.trig.RecordEntry(fv.Symbol, decision.DedupHash, now)
	if o.metrics != nil {
		o.metrics.RecordSignal("entry")
		o.metrics.EntriesToday.Inc()
	}

	if err := o.notify.SendSignal(ctx, signal, fv); err != nil {
		log.Warn().Err(err).Str("symbol", fv.Symbol).Msg("notify signal failed")
	}

	log.Info().
		Str("symbol", fv.Symbol).
		Float64("score", score.Value).
		Float64("entry_price", price).
		Msg("SHORT signal")
}

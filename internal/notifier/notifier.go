// Package notifier defines the contract for external signal/exit
// notification and provides a logging-only default implementation. The
// real delivery mechanism (Telegram, etc.) is an external collaborator, out
// of scope for this repository — see SPEC_FULL.md §5.
//
// The interface shape and per-symbol cooldown are grounded on
// original_source/telegram_bot/notifier.py's TelegramNotifier.
package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/shortsentinel/internal/model"
)

const (
	signalCooldown = 300 * time.Second
	exitCooldown   = 120 * time.Second
)

// Notifier is implemented by anything that can announce entry and exit
// events to an external channel.
type Notifier interface {
	SendSignal(ctx context.Context, s model.Signal, fv model.FeatureVector) error
	SendExit(ctx context.Context, pos model.Position) error
}

// LogNotifier logs signals and exits through zerolog, rate-limited per
// symbol exactly as TelegramNotifier's _should_send/_should_send_exit do.
// It satisfies Notifier so the orchestrator has a working default when no
// external notifier is wired in.
type LogNotifier struct {
	lastSignal map[string]time.Time
	lastExit   map[string]time.Time
}

// NewLogNotifier returns a ready-to-use LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		lastSignal: make(map[string]time.Time),
		lastExit:   make(map[string]time.Time),
	}
}

// SendSignal logs a SHORT entry signal, suppressing repeats for the same
// symbol within signalCooldown.
func (n *LogNotifier) SendSignal(ctx context.Context, s model.Signal, fv model.FeatureVector) error {
	now := time.Now()
	if last, ok := n.lastSignal[s.Symbol]; ok && now.Sub(last) < signalCooldown {
		return nil
	}
	n.lastSignal[s.Symbol] = now

	log.Info().
		Str("symbol", s.Symbol).
		Float64("score", s.Score).
		Float64("entry_price", s.EntryPrice).
		Float64("oi_divergence", fv.OIDivergence).
		Float64("liquidity_gap_above", fv.LiquidityGapAbove).
		Float64("sweep_rejection", fv.SweepRejection).
		Float64("funding_impulse", fv.FundingImpulse).
		Float64("btc_alignment", fv.BTCAlignment).
		Msg("SHORT signal")
	return nil
}

// SendExit logs a closed position, suppressing repeats for the same symbol
// within exitCooldown.
func (n *LogNotifier) SendExit(ctx context.Context, pos model.Position) error {
	now := time.Now()
	if last, ok := n.lastExit[pos.Symbol]; ok && now.Sub(last) < exitCooldown {
		return nil
	}
	n.lastExit[pos.Symbol] = now

	log.Info().
		Str("symbol", pos.Symbol).
		Str("reason", pos.ExitReason).
		Float64("pnl_pct", pos.PnLPct).
		Float64("exit_price", pos.ExitPrice).
		Msg("position closed")
	return nil
}

// Package exit implements the Exit Manager (C7): a per-position
// trailing-stop state machine for open SHORT positions.
//
// TrailingForShort is a direct port of
// original_source/scalp_engine/exit_manager.py's trailing_for_short (the
// canonical path per the spec's design notes — the file's separate
// check_exit TP/SL variant is not carried).
// The ExitReason enum with fixed precedence is grounded on the teacher's
// internal/exits/logic.go.
package exit

import (
	"time"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
)

// Reason enumerates why a position closed, ordered by precedence: a lower
// value always wins when more than one condition fires simultaneously.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonHardStop
	ReasonTrailingStop
)

func (r Reason) String() string {
	switch r {
	case ReasonHardStop:
		return "hard_stop"
	case ReasonTrailingStop:
		return "trailing_giveback"
	default:
		return "none"
	}
}

// Result is the outcome of one trailing-stop evaluation.
type Result struct {
	ShouldExit     bool
	Reason         Reason
	PnLPct         float64
	UpdatedBestLow float64
	TrailActive    bool
}

// Manager evaluates open positions against the configured trailing-stop
// thresholds.
type Manager struct {
	cfg config.Config
}

// New returns a Manager configured from cfg.
func New(cfg config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// TrailingForShort evaluates a SHORT position: bestLow tracks the lowest
// price seen since entry (the position's peak favorable excursion), and
// currentPrice is the latest unified price. Ported exactly from
// original_source/scalp_engine/exit_manager.py's trailing_for_short.
func (m *Manager) TrailingForShort(entryPrice, currentPrice, bestLow float64) Result {
	updatedBestLow := bestLow
	if currentPrice < updatedBestLow || updatedBestLow == 0 {
		updatedBestLow = currentPrice
	}

	pnlPct := (entryPrice - currentPrice) / entryPrice * 100
	peakPnlPct := (entryPrice - updatedBestLow) / entryPrice * 100
	trailActive := pnlPct >= m.cfg.TrailActivatePct

	result := Result{PnLPct: pnlPct, UpdatedBestLow: updatedBestLow, TrailActive: trailActive}

	switch {
	case pnlPct <= -m.cfg.HardStopLossPct:
		result.ShouldExit = true
		result.Reason = ReasonHardStop
	case trailActive && peakPnlPct >= m.cfg.TrailActivatePct && (peakPnlPct-pnlPct) >= m.cfg.TrailGivebackPct:
		result.ShouldExit = true
		result.Reason = ReasonTrailingStop
	}
	return result
}

// Open constructs a fresh Position for a just-triggered short entry.
func Open(symbol string, entryPrice float64, now time.Time) model.Position {
	return model.Position{
		Symbol:     symbol,
		EntryTS:    now,
		EntryPrice: entryPrice,
		Status:     model.PositionOpen,
		BestLow:    entryPrice,
	}
}

// Close applies a Result to pos, returning the closed position ready for
// the journal.
func Close(pos model.Position, result Result, exitPrice float64, now time.Time) model.Position {
	pos.Status = model.PositionClosed
	pos.BestLow = result.UpdatedBestLow
	pos.ExitTS = now
	pos.ExitPrice = exitPrice
	pos.ExitReason = result.Reason.String()
	pos.PnLPct = result.PnLPct
	pos.TrailActive = result.TrailActive
	return pos
}

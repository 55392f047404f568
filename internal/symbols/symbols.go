// Package symbols loads and validates the tradeable symbol universe, and
// translates canonical symbols into each venue's wire-format spelling.
//
// Grounded on original_source/data_fetcher/symbols.py (load_symbols,
// canon_to_lbank, universe_by_exchange) and the teacher's simple
// string-filter style (internal/domain/pairs/filter.go).
package symbols

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sawpanic/shortsentinel/internal/model"
)

// binanceBlacklistPrefixes excludes delisted/non-perp tickers that otherwise
// collide with the allowlist's naming convention, Binance-only.
var binanceBlacklistPrefixes = map[string]bool{
	"AAPL":  true,
	"AAPLX": true,
	"2Z":    true,
	"4":     true,
}

// Universe is the loaded, deduplicated, order-preserving symbol allowlist.
type Universe struct {
	symbols []string
	index   map[string]bool
}

// Load reads path (one symbol per line, '#' starts a comment) and returns a
// Universe. Symbols are normalized by stripping '/' and upper-casing, then
// deduplicated while preserving first-seen order.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file %s: %w", path, err)
	}
	defer f.Close()

	u := &Universe{index: make(map[string]bool)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		sym := normalize(line)
		if sym == "" || u.index[sym] {
			continue
		}
		u.index[sym] = true
		u.symbols = append(u.symbols, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan symbols file %s: %w", path, err)
	}
	return u, nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "/", "")
	return strings.ToUpper(strings.TrimSpace(s))
}

// Contains reports whether sym (already canonical) is part of the universe.
func (u *Universe) Contains(sym string) bool {
	return u.index[normalize(sym)]
}

// Symbols returns the full ordered symbol list.
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// ForVenue returns the subset of the universe valid for venue, applying
// venue-specific exclusions (only Binance carries a blacklist today).
func (u *Universe) ForVenue(v model.Venue) []string {
	if v != model.VenueBinance {
		return u.Symbols()
	}
	out := make([]string, 0, len(u.symbols))
	for _, sym := range u.symbols {
		excluded := false
		for prefix := range binanceBlacklistPrefixes {
			if strings.HasPrefix(sym, prefix) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, sym)
		}
	}
	return out
}

// ToLBank translates a canonical symbol ("BTCUSDT") into LBank's wire
// spelling ("btc_usdt"), matching original_source/data_fetcher/symbols.py's
// canon_to_lbank.
func ToLBank(canonical string) string {
	sym := normalize(canonical)
	if strings.HasSuffix(sym, "USDT") {
		base := strings.TrimSuffix(sym, "USDT")
		return strings.ToLower(base + "_usdt")
	}
	return strings.ToLower(sym)
}

// FromLBank reverses ToLBank, canonicalizing LBank's underscore-lowercase
// spelling back to "BTCUSDT" form. Grounded on the hub's _canon special-case
// for LBank (original_source/data_fetcher/hub.py).
func FromLBank(wire string) string {
	return normalize(strings.ReplaceAll(wire, "_", ""))
}

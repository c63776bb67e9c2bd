// Package marketdata derives MarketObservation values from order book
// state (§4.4) and applies the symbol-filter and emit-on-unchanged
// policies from §6.3 before a value reaches the pipeline's consumer
// queue.
package marketdata

import (
	"sync"

	"github.com/lxstream/itchbook/pkg/book"
	"github.com/lxstream/itchbook/pkg/itchtypes"
)

// Observation is the immutable snapshot published per touching event
// (§3). Symbol is trimmed for display — wire equality never flows
// through this type.
type Observation struct {
	Symbol    string           `json:"symbol"`
	Timestamp uint64           `json:"timestamp"`
	BestBid   itchtypes.Price4 `json:"best_bid"`
	BestAsk   itchtypes.Price4 `json:"best_ask"`
	BidVolume uint32           `json:"bid_volume"`
	AskVolume uint32           `json:"ask_volume"`
	Imbalance float64          `json:"imbalance"`
}

// Emitter turns a touched symbol into an Observation and decides
// whether it should actually be published, per the symbol_filter and
// emit_on_unchanged options (§6.3). It holds no book state of its own
// beyond the last published best-price pair per symbol, used only for
// the emit_on_unchanged=false comparison.
type Emitter struct {
	allow           map[itchtypes.Symbol]struct{} // nil means no filter
	emitOnUnchanged bool

	mu       sync.Mutex
	lastBest map[itchtypes.Symbol][2]itchtypes.Price4
}

// NewEmitter builds an Emitter. A nil or empty filter publishes
// observations for every symbol.
func NewEmitter(filter []itchtypes.Symbol, emitOnUnchanged bool) *Emitter {
	e := &Emitter{emitOnUnchanged: emitOnUnchanged, lastBest: make(map[itchtypes.Symbol][2]itchtypes.Price4)}
	if len(filter) > 0 {
		e.allow = make(map[itchtypes.Symbol]struct{}, len(filter))
		for _, s := range filter {
			e.allow[s] = struct{}{}
		}
	}
	return e
}

// Observe reads b's current state for sym and returns the derived
// Observation along with whether it passes the filter and
// emit_on_unchanged policy. The book has already applied the message
// that touched sym by the time this is called, so the observation
// reflects post-update state.
func (e *Emitter) Observe(b *book.Book, sym itchtypes.Symbol, timestamp uint64) (Observation, bool) {
	bid, ask := b.BestPrices(sym)
	bidVol, askVol := b.SideVolumes(sym)
	obs := Observation{
		Symbol:    sym.String(),
		Timestamp: timestamp,
		BestBid:   bid,
		BestAsk:   ask,
		BidVolume: bidVol,
		AskVolume: askVol,
		Imbalance: b.Imbalance(sym),
	}

	if !e.allowed(sym) {
		return obs, false
	}
	if !e.emitOnUnchanged && !e.recordChange(sym, bid, ask) {
		return obs, false
	}
	return obs, true
}

func (e *Emitter) allowed(sym itchtypes.Symbol) bool {
	if e.allow == nil {
		return true
	}
	_, ok := e.allow[sym]
	return ok
}

// recordChange reports whether (bid, ask) differs from the last pair
// recorded for sym, and updates the record either way.
func (e *Emitter) recordChange(sym itchtypes.Symbol, bid, ask itchtypes.Price4) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, seen := e.lastBest[sym]
	e.lastBest[sym] = [2]itchtypes.Price4{bid, ask}
	return !seen || prev[0] != bid || prev[1] != ask
}

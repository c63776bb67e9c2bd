// Package book implements the in-memory limit order book (§4.3): a
// per-symbol, two-sided, price-ordered ledger that applies ITCH 5.0
// message effects and answers best-price, volume, and imbalance
// queries in O(log L) per price-level lookup.
package book

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/lxstream/itchbook/pkg/itch"
	"github.com/lxstream/itchbook/pkg/itchtypes"
	"github.com/lxstream/itchbook/pkg/log"
)

// InvariantCounter receives a tick for every InternalInvariant the book
// observes. *prometheus.Counter satisfies this directly.
type InvariantCounter interface {
	Inc()
}

// Level is one (price, aggregate_shares) pair as returned by Snapshot.
type Level struct {
	Price  itchtypes.Price4
	Shares uint32
}

// Snapshot is the display-order view of one symbol's two sides.
type Snapshot struct {
	Bids []Level // descending price
	Asks []Level // ascending price
}

// indexEntry is OrderIndex's value type: everything needed to undo an
// order's effect on its price level without consulting the book.
type indexEntry struct {
	Symbol     itchtypes.Symbol
	Side       itchtypes.Side
	Price      itchtypes.Price4
	OpenShares uint32
}

// Book owns every SymbolBook and the global OrderIndex. A single mutex
// guards all state (§9: "acceptable to a few hundred k msg/s") — the
// sharded-by-stock_locate alternative in §5 is not implemented here.
type Book struct {
	mu        sync.Mutex
	symbols   map[itchtypes.Symbol]*symbolBook
	index     map[uint64]indexEntry
	logger    log.Logger
	invariant InvariantCounter
}

// New creates an empty book. invariant may be nil; when set, it is
// incremented once per InternalInvariant observed (crossed book,
// over-reduction) so operators can alert on it.
func New(logger log.Logger, invariant InvariantCounter) *Book {
	if logger == nil {
		logger = log.Root()
	}
	return &Book{
		symbols:   make(map[itchtypes.Symbol]*symbolBook),
		index:     make(map[uint64]indexEntry),
		logger:    logger,
		invariant: invariant,
	}
}

// Apply applies one decoded message's effect on the book. It reports
// the symbol touched and true when the message changed book state;
// messages that carry no book effect (SystemEvent, StockDirectory,
// TradingAction, ...) report false and are ignored here — the caller
// should still forward them to any interested consumer out-of-band if
// it cares about non-book-affecting messages.
func (b *Book) Apply(m itch.Message) (itchtypes.Symbol, bool) {
	switch body := m.Body.(type) {
	case itch.AddOrder:
		return b.applyAdd(body), true
	case itch.OrderExecuted:
		return b.applyReduce(body.Reference, body.Executed)
	case itch.OrderExecutedWithPrice:
		// The trade print price in body.Price is never used to relocate
		// the order — only the resting price from the index matters.
		return b.applyReduce(body.Reference, body.Executed)
	case itch.OrderCancelled:
		return b.applyReduce(body.Reference, body.Cancelled)
	case itch.OrderDeleted:
		return b.applyDelete(body.Reference)
	case itch.OrderReplaced:
		return b.applyReplace(body)
	default:
		return itchtypes.Symbol{}, false
	}
}

func (b *Book) applyAdd(a itch.AddOrder) itchtypes.Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[a.Reference]; exists {
		b.logger.Warn("duplicate add order reference, overwriting", "reference", a.Reference)
		b.removeLocked(a.Reference)
	}

	sb := b.symbolLocked(a.Stock)
	b.sideOf(sb, a.Side).add(a.Price, a.Shares)
	b.index[a.Reference] = indexEntry{Symbol: a.Stock, Side: a.Side, Price: a.Price, OpenShares: a.Shares}
	b.settle(a.Stock, sb)
	return a.Stock
}

func (b *Book) applyDelete(ref uint64) (itchtypes.Symbol, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.index[ref]
	if !ok {
		return itchtypes.Symbol{}, false // MissingOrder: silently ignored, per §7
	}
	b.removeLocked(ref)
	b.settle(entry.Symbol, b.symbols[entry.Symbol])
	return entry.Symbol, true
}

// applyReduce is shared by Execute, ExecuteWithPrice and Cancel: all
// three decrement open_shares by min(qty, open_shares) and erase the
// order once it reaches zero.
func (b *Book) applyReduce(ref uint64, qty uint32) (itchtypes.Symbol, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.index[ref]
	if !ok {
		return itchtypes.Symbol{}, false
	}
	effective := qty
	if effective > entry.OpenShares {
		b.violation("reduce quantity exceeds open shares")
		effective = entry.OpenShares
	}

	sb := b.symbols[entry.Symbol]
	b.sideOf(sb, entry.Side).remove(entry.Price, effective)
	entry.OpenShares -= effective
	if entry.OpenShares == 0 {
		delete(b.index, ref)
	} else {
		b.index[ref] = entry
	}
	b.settle(entry.Symbol, sb)
	return entry.Symbol, true
}

func (b *Book) applyReplace(u itch.OrderReplaced) (itchtypes.Symbol, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.index[u.OldReference]
	if !ok {
		return itchtypes.Symbol{}, false
	}
	sb := b.symbols[old.Symbol]
	b.sideOf(sb, old.Side).remove(old.Price, old.OpenShares)
	delete(b.index, u.OldReference)

	b.sideOf(sb, old.Side).add(u.Price, u.Shares)
	b.index[u.NewReference] = indexEntry{Symbol: old.Symbol, Side: old.Side, Price: u.Price, OpenShares: u.Shares}

	b.settle(old.Symbol, sb)
	return old.Symbol, true
}

// removeLocked fully erases ref's resting effect. Caller holds b.mu and
// has already confirmed ref is present.
func (b *Book) removeLocked(ref uint64) {
	entry := b.index[ref]
	sb := b.symbols[entry.Symbol]
	b.sideOf(sb, entry.Side).remove(entry.Price, entry.OpenShares)
	delete(b.index, ref)
}

func (b *Book) symbolLocked(sym itchtypes.Symbol) *symbolBook {
	sb, ok := b.symbols[sym]
	if !ok {
		sb = newSymbolBook()
		b.symbols[sym] = sb
	}
	return sb
}

func (b *Book) sideOf(sb *symbolBook, side itchtypes.Side) *sideBook {
	if side == itchtypes.Buy {
		return sb.bids
	}
	return sb.asks
}

// settle recomputes cached best prices and checks the cross-side
// consistency invariant (§4.3): best_bid < best_ask whenever both
// sides are non-empty. A violation is logged and counted but never
// halts the pipeline.
func (b *Book) settle(sym itchtypes.Symbol, sb *symbolBook) {
	sb.recomputeBest()
	if sb.bestBid != 0 && sb.bestAsk != 0 && sb.bestBid >= sb.bestAsk {
		b.violation("crossed book")
		b.logger.Warn("crossed book", "symbol", sym.String(), "best_bid", sb.bestBid, "best_ask", sb.bestAsk)
	}
}

func (b *Book) violation(reason string) {
	if b.invariant != nil {
		b.invariant.Inc()
	}
	b.logger.Error("internal invariant violated", "reason", reason)
}

// BestPrices returns (best_bid, best_ask), each 0 if that side is
// empty or the symbol is unknown.
func (b *Book) BestPrices(sym itchtypes.Symbol) (bid, ask itchtypes.Price4) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.symbols[sym]
	if !ok {
		return 0, 0
	}
	return sb.bestBid, sb.bestAsk
}

// SideVolumes returns the sum of aggregate_shares across all levels on
// each side.
func (b *Book) SideVolumes(sym itchtypes.Symbol) (bidVolume, askVolume uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.symbols[sym]
	if !ok {
		return 0, 0
	}
	return sb.bids.total, sb.asks.total
}

// Imbalance computes (bid_volume - ask_volume) / (bid_volume +
// ask_volume), or 0 when both sides are empty. This is the corrected
// formula per §9 — the source's alternate "bid / (bid + ask)" reading
// is not used.
func (b *Book) Imbalance(sym itchtypes.Symbol) float64 {
	bidVol, askVol := b.SideVolumes(sym)
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (float64(bidVol) - float64(askVol)) / float64(total)
}

// Snapshot returns both sides in display order: bids descending,
// asks ascending.
func (b *Book) Snapshot(sym itchtypes.Symbol) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.symbols[sym]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Bids: sb.bids.levelsDescending(), Asks: sb.asks.levelsAscending()}
}

// OrderOpenShares returns an open order's remaining shares and whether
// it is still resting. Exposed for tests and operational introspection.
func (b *Book) OrderOpenShares(ref uint64) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.index[ref]
	return entry.OpenShares, ok
}

// symbolBook holds one symbol's two sides plus a memoised best-price
// pair — a contract per §4.3, not merely a cache: callers may read
// BestPrices between writes without traversing either side map.
type symbolBook struct {
	bids    *sideBook
	asks    *sideBook
	bestBid itchtypes.Price4
	bestAsk itchtypes.Price4
}

func newSymbolBook() *symbolBook {
	return &symbolBook{bids: newSideBook(itchtypes.Buy), asks: newSideBook(itchtypes.Sell)}
}

func (sb *symbolBook) recomputeBest() {
	sb.bestBid = sb.bids.best()
	sb.bestAsk = sb.asks.best()
}

// sideBook is an unordered map from price to aggregate_shares for one
// side of one symbol, plus a lazily-cleaned heap that gives
// O(log L) best-price lookup (§4.3, §9). A hand-rolled heap is a
// reasonable choice here since no ordered-map library fits this case
// (see DESIGN.md). stale counts heap entries whose price has been
// erased from levels but not yet popped — best only reclaims those
// sitting at the root, so remove keeps stale in sync and triggers a
// full rebuild once orphaned entries could outnumber live levels,
// keeping the heap's backing slice proportional to L instead of to
// total lifetime add/remove churn at a price.
type sideBook struct {
	levels map[itchtypes.Price4]uint32
	heap   *priceHeap
	total  uint32
	stale  int
}

func newSideBook(side itchtypes.Side) *sideBook {
	var less func(a, b itchtypes.Price4) bool
	if side == itchtypes.Buy {
		less = func(a, b itchtypes.Price4) bool { return a > b } // max at top
	} else {
		less = func(a, b itchtypes.Price4) bool { return a < b } // min at top
	}
	return &sideBook{levels: make(map[itchtypes.Price4]uint32), heap: &priceHeap{less: less}}
}

func (s *sideBook) add(price itchtypes.Price4, shares uint32) {
	if _, exists := s.levels[price]; !exists {
		heap.Push(s.heap, price)
	}
	s.levels[price] += shares
	s.total += shares
}

func (s *sideBook) remove(price itchtypes.Price4, shares uint32) {
	cur, ok := s.levels[price]
	if !ok {
		return
	}
	delta := shares
	if delta > cur {
		delta = cur
	}
	s.total -= delta
	if delta >= cur {
		delete(s.levels, price)
		s.stale++
		s.rebuildIfStale()
	} else {
		s.levels[price] = cur - delta
	}
}

// rebuildIfStale discards and rebuilds the heap from the live price
// set once orphaned entries (stale) could outnumber live levels. A
// price erased and re-added away from the root leaves its old heap
// entry behind forever otherwise, since container/heap has no
// efficient arbitrary-element removal — this bounds the heap to O(L)
// amortized regardless of how many times a price churns over a
// session instead of letting it grow without bound.
func (s *sideBook) rebuildIfStale() {
	if s.stale <= len(s.levels) {
		return
	}
	fresh := make([]itchtypes.Price4, 0, len(s.levels))
	for price := range s.levels {
		fresh = append(fresh, price)
	}
	s.heap.prices = fresh
	heap.Init(s.heap)
	s.stale = 0
}

// best returns the top-of-book price for this side, lazily discarding
// heap entries whose level has since been erased. 0 means empty.
func (s *sideBook) best() itchtypes.Price4 {
	for s.heap.Len() > 0 {
		top := s.heap.prices[0]
		if _, ok := s.levels[top]; ok {
			return top
		}
		heap.Pop(s.heap)
		if s.stale > 0 {
			s.stale--
		}
	}
	return 0
}

func (s *sideBook) levelsDescending() []Level {
	levels := s.sortedLevels()
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

func (s *sideBook) levelsAscending() []Level {
	levels := s.sortedLevels()
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

func (s *sideBook) sortedLevels() []Level {
	levels := make([]Level, 0, len(s.levels))
	for price, shares := range s.levels {
		levels = append(levels, Level{Price: price, Shares: shares})
	}
	return levels
}

// priceHeap is a container/heap over prices, ordered by less. Stale
// entries (prices whose level has been erased) are discarded lazily by
// sideBook.best rather than eagerly, since container/heap has no
// efficient arbitrary-element removal.
type priceHeap struct {
	prices []itchtypes.Price4
	less   func(a, b itchtypes.Price4) bool
}

func (h priceHeap) Len() int            { return len(h.prices) }
func (h priceHeap) Less(i, j int) bool  { return h.less(h.prices[i], h.prices[j]) }
func (h priceHeap) Swap(i, j int)       { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }
func (h *priceHeap) Push(x interface{}) { h.prices = append(h.prices, x.(itchtypes.Price4)) }
func (h *priceHeap) Pop() interface{} {
	old := h.prices
	n := len(old)
	v := old[n-1]
	h.prices = old[:n-1]
	return v
}

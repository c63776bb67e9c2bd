package book

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxstream/itchbook/pkg/itch"
	"github.com/lxstream/itchbook/pkg/itchtypes"
)

func addOrder(ref uint64, side itchtypes.Side, shares uint32, stock string, price itchtypes.Price4, ts uint64) itch.Message {
	return itch.Message{
		Tag:    itch.TagAddOrder,
		Header: itch.Header{Timestamp: ts},
		Body: itch.AddOrder{
			Reference: ref, Side: side, Shares: shares, Stock: itchtypes.NewSymbol(stock), Price: price,
		},
	}
}

func deleteOrder(ref uint64, ts uint64) itch.Message {
	return itch.Message{Tag: itch.TagOrderDeleted, Header: itch.Header{Timestamp: ts}, Body: itch.OrderDeleted{Reference: ref}}
}

func executed(ref uint64, shares uint32, ts uint64) itch.Message {
	return itch.Message{
		Tag: itch.TagOrderExecuted, Header: itch.Header{Timestamp: ts},
		Body: itch.OrderExecuted{Reference: ref, Executed: shares, MatchNumber: 1},
	}
}

// S1 — single AddOrder, single Delete.
func TestScenarioAddThenDelete(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	sym, touched := b.Apply(addOrder(1, itchtypes.Buy, 100, "ABC", 100000, 1000))
	require.True(t, touched)
	require.Equal(t, stock, sym)

	bid, ask := b.BestPrices(stock)
	require.Equal(t, itchtypes.Price4(100000), bid)
	require.Equal(t, itchtypes.Price4(0), ask)
	bidVol, askVol := b.SideVolumes(stock)
	require.Equal(t, uint32(100), bidVol)
	require.Equal(t, uint32(0), askVol)
	require.Equal(t, 1.0, b.Imbalance(stock))

	sym, touched = b.Apply(deleteOrder(1, 1001))
	require.True(t, touched)
	require.Equal(t, stock, sym)

	bid, ask = b.BestPrices(stock)
	require.Zero(t, bid)
	require.Zero(t, ask)
	bidVol, askVol = b.SideVolumes(stock)
	require.Zero(t, bidVol)
	require.Zero(t, askVol)
	require.Zero(t, b.Imbalance(stock))
	_, ok := b.OrderOpenShares(1)
	require.False(t, ok)
}

// S2 — partial execution.
func TestScenarioPartialExecution(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(7, itchtypes.Sell, 500, "ABC", 500000, 1000))
	sym, touched := b.Apply(executed(7, 200, 1001))
	require.True(t, touched)
	require.Equal(t, stock, sym)

	_, ask := b.BestPrices(stock)
	require.Equal(t, itchtypes.Price4(500000), ask)
	bidVol, askVol := b.SideVolumes(stock)
	require.Equal(t, uint32(0), bidVol)
	require.Equal(t, uint32(300), askVol)
	require.Equal(t, -1.0, b.Imbalance(stock))

	open, ok := b.OrderOpenShares(7)
	require.True(t, ok)
	require.Equal(t, uint32(300), open)
}

// S3 — replace across price.
func TestScenarioReplaceAcrossPrice(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(11, itchtypes.Buy, 100, "ABC", 100000, 1000))
	sym, touched := b.Apply(itch.Message{
		Tag: itch.TagOrderReplaced, Header: itch.Header{Timestamp: 1001},
		Body: itch.OrderReplaced{OldReference: 11, NewReference: 12, Shares: 100, Price: 100100},
	})
	require.True(t, touched)
	require.Equal(t, stock, sym)

	_, ok := b.OrderOpenShares(11)
	require.False(t, ok)
	open, ok := b.OrderOpenShares(12)
	require.True(t, ok)
	require.Equal(t, uint32(100), open)

	bid, _ := b.BestPrices(stock)
	require.Equal(t, itchtypes.Price4(100100), bid)
	bidVol, _ := b.SideVolumes(stock)
	require.Equal(t, uint32(100), bidVol)
}

// S4 — two-sided book.
func TestScenarioTwoSidedBook(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(1, itchtypes.Buy, 100, "ABC", 99900, 1000))
	b.Apply(addOrder(2, itchtypes.Sell, 100, "ABC", 100100, 1001))
	b.Apply(addOrder(3, itchtypes.Buy, 200, "ABC", 99800, 1002))

	bid, ask := b.BestPrices(stock)
	require.Equal(t, itchtypes.Price4(99900), bid)
	require.Equal(t, itchtypes.Price4(100100), ask)
	bidVol, askVol := b.SideVolumes(stock)
	require.Equal(t, uint32(300), bidVol)
	require.Equal(t, uint32(100), askVol)
	require.InDelta(t, 0.5, b.Imbalance(stock), 1e-9)
}

// S5 — MissingOrder tolerance.
func TestScenarioMissingOrderIsNoop(t *testing.T) {
	b := New(nil, nil)
	_, touched := b.Apply(deleteOrder(99999, 1000))
	require.False(t, touched)
}

// Invariant 1: aggregate_shares equals the sum of open_shares resting
// at that level, checked via side volumes after a sequence of adds,
// partial reduces and deletes.
func TestInvariantAggregateMatchesOpenShares(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(1, itchtypes.Buy, 100, "ABC", 100000, 1))
	b.Apply(addOrder(2, itchtypes.Buy, 50, "ABC", 100000, 2))
	b.Apply(executed(1, 30, 3))
	b.Apply(deleteOrder(2, 4))

	bidVol, _ := b.SideVolumes(stock)
	require.Equal(t, uint32(70), bidVol)
	open, ok := b.OrderOpenShares(1)
	require.True(t, ok)
	require.Equal(t, uint32(70), open)
}

// Invariant 4/5: Add then Delete on an empty book returns it to empty.
func TestInvariantAddDeleteRoundTripsToEmpty(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	refs := []uint64{1, 2, 3}
	for i, ref := range refs {
		b.Apply(addOrder(ref, itchtypes.Buy, 100, "ABC", itchtypes.Price4(100000+uint32(i)), uint64(i)))
	}
	for _, ref := range refs {
		b.Apply(deleteOrder(ref, 100))
	}

	bid, ask := b.BestPrices(stock)
	require.Zero(t, bid)
	require.Zero(t, ask)
	snap := b.Snapshot(stock)
	require.Empty(t, snap.Bids)
	require.Empty(t, snap.Asks)
	for _, ref := range refs {
		_, ok := b.OrderOpenShares(ref)
		require.False(t, ok)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(1, itchtypes.Buy, 100, "ABC", 99900, 1))
	b.Apply(addOrder(2, itchtypes.Buy, 50, "ABC", 100000, 2))
	b.Apply(addOrder(3, itchtypes.Sell, 10, "ABC", 100200, 3))
	b.Apply(addOrder(4, itchtypes.Sell, 10, "ABC", 100100, 4))

	snap := b.Snapshot(stock)
	require.Len(t, snap.Bids, 2)
	require.Equal(t, itchtypes.Price4(100000), snap.Bids[0].Price)
	require.Equal(t, itchtypes.Price4(99900), snap.Bids[1].Price)

	require.Len(t, snap.Asks, 2)
	require.Equal(t, itchtypes.Price4(100100), snap.Asks[0].Price)
	require.Equal(t, itchtypes.Price4(100200), snap.Asks[1].Price)
}

// OrderExecutedWithPrice must not relocate the resting order to the
// trade print price.
func TestExecuteWithPriceDoesNotRelocateOrder(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	b.Apply(addOrder(1, itchtypes.Sell, 100, "ABC", 100000, 1))
	b.Apply(itch.Message{
		Tag: itch.TagOrderExecutedWithPrice, Header: itch.Header{Timestamp: 2},
		Body: itch.OrderExecutedWithPrice{Reference: 1, Executed: 40, MatchNumber: 1, Printable: true, Price: 99000},
	})

	_, ask := b.BestPrices(stock)
	require.Equal(t, itchtypes.Price4(100000), ask)
	open, ok := b.OrderOpenShares(1)
	require.True(t, ok)
	require.Equal(t, uint32(60), open)
}

// A price level that repeatedly empties and refills away from the
// touch must not leave its old heap entry orphaned forever: the
// heap's backing slice should stay proportional to the number of live
// levels, not to how many times a price has churned over the book's
// lifetime.
func TestSideBookHeapStaysBoundedUnderChurn(t *testing.T) {
	b := New(nil, nil)
	stock := itchtypes.NewSymbol("ABC")

	// A handful of price levels stay resting throughout, so the heap's
	// "live" baseline is never zero — the churn below can't trivially
	// empty the whole side and force a rebuild by accident.
	for i := 0; i < 5; i++ {
		b.Apply(addOrder(uint64(i+1), itchtypes.Buy, 100, "ABC", itchtypes.Price4(100000+uint32(i)), uint64(i)))
	}

	var ref uint64 = 1000
	for i := 0; i < 5000; i++ {
		ref++
		b.Apply(addOrder(ref, itchtypes.Buy, 100, "ABC", 90000, uint64(i)))
		b.Apply(deleteOrder(ref, uint64(i)))
	}

	sb := b.symbols[stock]
	require.Len(t, sb.bids.levels, 5)
	require.Less(t, sb.bids.heap.Len(), 32,
		"heap should have been periodically rebuilt, not grown once per churn cycle across 5000 iterations")
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

func init() {
	config.NewLoggerService()
}

type captureSink struct {
	mu         sync.Mutex
	executions []*matching.Execution
}

func (s *captureSink) Submit(exec *matching.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, exec)
}

func (s *captureSink) trades() []*matching.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := make([]*matching.Trade, 0, len(s.executions))
	for _, exec := range s.executions {
		trades = append(trades, exec.Trade)
	}
	return trades
}

func newTestRouter(t *testing.T, sinks ...TradeSink) (*Router, *broadcast.Hub) {
	t.Helper()

	hub := broadcast.NewHub()
	router := NewRouter(t.TempDir(), hub, nil, sinks...)
	require.NoError(t, router.AddAsset("asset"))

	return router, hub
}

func limitOrder(side types.OrderSide, price, amount string) *matching.Order {
	p, _ := decimal.NewFromString(price)
	a, _ := decimal.NewFromString(amount)

	return &matching.Order{
		AssetID: "asset",
		Maker:   "acct-" + side,
		Side:    side,
		Type:    types.TypeLimit,
		Price:   p,
		Amount:  a,
	}
}

func TestSubmitMatchesAndSinks(t *testing.T) {
	sink := new(captureSink)
	router, _ := newTestRouter(t, sink)
	defer router.Close()

	ctx := context.Background()

	res, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "5"))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	res, err = router.Submit(ctx, limitOrder(types.SideSell, "9.8", "6"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	assert.True(t, trade.Price.Equal(decimal.NewFromFloat(10.0)))
	assert.True(t, trade.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, types.SettlementPending, trade.SettlementStatus)

	require.Len(t, sink.trades(), 1)
	assert.Equal(t, trade.ID, sink.trades()[0].ID)

	depth, err := router.Depth("asset", 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Asks[0][0].Equal(decimal.NewFromFloat(9.8)))
	assert.True(t, depth.Asks[0][1].Equal(decimal.NewFromInt(1)))
}

func TestSubmitValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	ctx := context.Background()

	cases := []struct {
		name   string
		order  *matching.Order
		reason string
	}{
		{"bad side", &matching.Order{AssetID: "asset", Side: "hold", Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)}, types.RejectInvalidSide},
		{"zero amount", limitOrder(types.SideBuy, "10.0", "0"), types.RejectInvalidAmount},
		{"negative amount", limitOrder(types.SideBuy, "10.0", "-2"), types.RejectInvalidAmount},
		{"zero price limit", limitOrder(types.SideBuy, "0", "1"), types.RejectInvalidPrice},
		{"priced market order", &matching.Order{AssetID: "asset", Side: types.SideBuy, Type: types.TypeMarket, Price: decimal.NewFromInt(3), Amount: decimal.NewFromInt(1)}, types.RejectInvalidPrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := router.Submit(ctx, tc.order)
			require.Error(t, err)

			rejection, ok := err.(*Rejection)
			require.True(t, ok)
			assert.Equal(t, tc.reason, rejection.Reason)
		})
	}
}

func TestSubmitUnknownAsset(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	order := limitOrder(types.SideBuy, "10.0", "1")
	order.AssetID = "ghost"

	_, err := router.Submit(context.Background(), order)
	require.Error(t, err)

	rejection, ok := err.(*Rejection)
	require.True(t, ok)
	assert.Equal(t, types.RejectUnknownAsset, rejection.Reason)
}

func TestDefaultTypeIsLimit(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	order := limitOrder(types.SideBuy, "10.0", "1")
	order.Type = ""

	res, err := router.Submit(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, types.TypeLimit, res.Order.Type)
}

func TestCancelRemainderKeepsFills(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	ctx := context.Background()

	resting := limitOrder(types.SideBuy, "10.0", "5")
	_, err := router.Submit(ctx, resting)
	require.NoError(t, err)

	_, err = router.Submit(ctx, limitOrder(types.SideSell, "10.0", "2"))
	require.NoError(t, err)

	res, err := router.Cancel(ctx, resting.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CancelOK, res.CancelStatus)
	assert.True(t, res.Order.Filled.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, types.StatusCancelled, res.Order.Status())

	// Second cancel: the remainder is already gone.
	res, err = router.Cancel(ctx, resting.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CancelNotFound, res.CancelStatus)
}

func TestCancelUnknownOrder(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	res, err := router.Cancel(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, types.CancelNotFound, res.CancelStatus)
}

// A cancel racing a crossing order resolves against whatever the lane sees
// when the cancel is dequeued: either the trade already happened, or the
// order leaves the book and no trade follows. Never both for the same
// amount, never neither.
func TestCancelRaceResolvesDeterministically(t *testing.T) {
	for i := 0; i < 20; i++ {
		sink := new(captureSink)
		router, _ := newTestRouter(t, sink)

		ctx := context.Background()

		resting := limitOrder(types.SideBuy, "10.0", "5")
		_, err := router.Submit(ctx, resting)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var cancelRes, submitRes Result

		wg.Add(2)
		go func() {
			defer wg.Done()
			submitRes, _ = router.Submit(ctx, limitOrder(types.SideSell, "10.0", "5"))
		}()
		go func() {
			defer wg.Done()
			cancelRes, _ = router.Cancel(ctx, resting.ID)
		}()
		wg.Wait()

		if cancelRes.CancelStatus == types.CancelOK {
			assert.Empty(t, submitRes.Trades, "iteration %d: trade executed against a cancelled order", i)
		} else {
			require.Len(t, submitRes.Trades, 1, "iteration %d: no trade and no cancel", i)
			assert.True(t, submitRes.Trades[0].Amount.Equal(decimal.NewFromInt(5)))
		}

		router.Close()
	}
}

func TestEventsAreGapless(t *testing.T) {
	router, hub := newTestRouter(t)
	defer router.Close()

	sub, backlog, resync := hub.Subscribe("asset", 0)
	require.False(t, resync)
	require.Empty(t, backlog)

	ctx := context.Background()
	_, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "5"))
	require.NoError(t, err)
	res, err := router.Submit(ctx, limitOrder(types.SideSell, "9.8", "6"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	require.NoError(t, router.RecordSettlement(ctx, "asset", &SettlementTransition{
		TradeID: res.Trades[0].ID,
		Status:  types.SettlementConfirmed,
		TxRef:   "tx-1",
	}))

	// rest bid, trade, drained level, rested remainder, settlement
	want := []types.EventKind{types.EventDelta, types.EventTrade, types.EventDelta, types.EventDelta, types.EventSettlement}

	for i, kind := range want {
		ev := <-sub.Events()
		assert.EqualValues(t, i+1, ev.Sequence)
		assert.Equal(t, kind, ev.Type)
	}
}

func TestRecoveryRestoresBookAndSequence(t *testing.T) {
	dir := t.TempDir()
	hub := broadcast.NewHub()

	router := NewRouter(dir, hub, nil)
	require.NoError(t, router.AddAsset("asset"))

	ctx := context.Background()
	_, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "5"))
	require.NoError(t, err)
	_, err = router.Submit(ctx, limitOrder(types.SideSell, "9.8", "6"))
	require.NoError(t, err)

	before, err := router.Depth("asset", 0)
	require.NoError(t, err)
	router.Close()

	reopened := NewRouter(dir, broadcast.NewHub(), nil)
	require.NoError(t, reopened.AddAsset("asset"))
	defer reopened.Close()

	after, err := reopened.Depth("asset", 0)
	require.NoError(t, err)

	assert.Equal(t, before.Sequence, after.Sequence)
	assert.EqualValues(t, before.Bids, after.Bids)
	assert.EqualValues(t, before.Asks, after.Asks)

	// New mutations continue the sequence instead of reusing it.
	res, err := reopened.Submit(ctx, limitOrder(types.SideBuy, "9.9", "1"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Greater(t, res.Trades[0].Sequence, before.Sequence)
}

func TestCancelAfterRestart(t *testing.T) {
	dir := t.TempDir()

	router := NewRouter(dir, broadcast.NewHub(), nil)
	require.NoError(t, router.AddAsset("asset"))

	ctx := context.Background()
	resting := limitOrder(types.SideBuy, "10.0", "5")
	_, err := router.Submit(ctx, resting)
	require.NoError(t, err)
	router.Close()

	reopened := NewRouter(dir, broadcast.NewHub(), nil)
	require.NoError(t, reopened.AddAsset("asset"))
	defer reopened.Close()

	// The recovered resting order must still be addressable by ID.
	res, err := reopened.Cancel(ctx, resting.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CancelOK, res.CancelStatus)
	assert.True(t, res.Order.Filled.IsZero())

	depth, err := reopened.Depth("asset", 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
}

func TestSubscribeAfterRestartRequiresResync(t *testing.T) {
	dir := t.TempDir()

	router := NewRouter(dir, broadcast.NewHub(), nil)
	require.NoError(t, router.AddAsset("asset"))

	ctx := context.Background()
	_, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "5"))
	require.NoError(t, err)
	router.Close()

	hub := broadcast.NewHub()
	reopened := NewRouter(dir, hub, nil)
	require.NoError(t, reopened.AddAsset("asset"))
	defer reopened.Close()

	// The new hub never held the pre-restart events, so resuming from
	// below the recovered sequence demands a snapshot instead of handing
	// out an empty backlog with the gap unacknowledged.
	sub, backlog, resync := hub.Subscribe("asset", 0)
	require.True(t, resync)
	assert.Nil(t, sub)
	assert.Empty(t, backlog)

	depth, err := reopened.Depth("asset", 0)
	require.NoError(t, err)

	sub, backlog, resync = hub.Subscribe("asset", depth.Sequence)
	require.False(t, resync)
	require.Empty(t, backlog)

	_, err = reopened.Submit(ctx, limitOrder(types.SideBuy, "9.9", "1"))
	require.NoError(t, err)

	ev := <-sub.Events()
	assert.Equal(t, depth.Sequence+1, ev.Sequence)
}

func TestAppendFailureKeepsAcknowledgedState(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	ctx := context.Background()
	maker := limitOrder(types.SideBuy, "10.0", "5")
	_, err := router.Submit(ctx, maker)
	require.NoError(t, err)

	// Break the journal under the lane; the next pass matches in memory
	// but cannot be recorded.
	require.NoError(t, router.lane("asset").log.Close())

	_, err = router.Submit(ctx, limitOrder(types.SideSell, "10.0", "5"))
	require.Error(t, err)

	// The unjournaled fill is discarded: the maker rests untouched, as
	// a restart would have replayed it.
	depth, err := router.Depth("asset", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0][1].Equal(decimal.NewFromInt(5)))

	restored, found := router.lane("asset").Book().GetOrder(maker.ID)
	require.True(t, found)
	assert.True(t, restored.Filled.IsZero())
}

func TestFailedSubmitLeavesNoIndexEntry(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	require.NoError(t, router.lane("asset").log.Close())

	order := limitOrder(types.SideBuy, "10.0", "5")
	_, err := router.Submit(context.Background(), order)
	require.Error(t, err)

	_, found := router.index.Load(order.ID)
	assert.False(t, found)
}

func TestCloseUnblocksPendingSubmits(t *testing.T) {
	router, _ := newTestRouter(t)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 32)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "1")); err != nil {
				errs <- err
			}
		}()
	}

	router.Close()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("submits stayed blocked after close")
	}

	close(errs)
	for err := range errs {
		if errors.Is(err, ErrLaneClosed) {
			continue
		}
		var rejection *Rejection
		require.ErrorAs(t, err, &rejection)
		assert.Equal(t, types.RejectUnknownAsset, rejection.Reason)
	}
}

func TestReinstatePutsAmountBack(t *testing.T) {
	router, _ := newTestRouter(t)
	defer router.Close()

	ctx := context.Background()
	_, err := router.Submit(ctx, limitOrder(types.SideBuy, "10.0", "5"))
	require.NoError(t, err)
	res, err := router.Submit(ctx, limitOrder(types.SideSell, "10.0", "5"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	assert.Equal(t, types.SideBuy, trade.MakerSide)

	_, err = router.Reinstate(ctx, trade)
	require.NoError(t, err)

	depth, err := router.Depth("asset", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0][0].Equal(trade.Price))
	assert.True(t, depth.Bids[0][1].Equal(trade.Amount))
}

package matching

import (
	"sync/atomic"
	"time"

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/types"
)

// OrderBook is the per-asset book: two trees of price levels plus an index
// of resting orders. It is mutated exclusively by the lane that owns it;
// readers are served from the copy-on-write depth snapshot.
type OrderBook struct {
	AssetID string

	Bids *rbt.Tree
	Asks *rbt.Tree

	orders   map[uuid.UUID]*Order
	sequence uint64
	counter  uint64

	depth atomic.Value // *DepthSnapshot
}

// Comparator orders price levels so that tree.Right() is the best level on
// both sides: highest price for bids, lowest price for asks.
func Comparator(a, b interface{}) int {
	this := a.(PriceLevelKey)
	that := b.(PriceLevelKey)

	switch {
	case this.Side == types.SideSell && this.Price.LessThan(that.Price):
		return 1

	case this.Side == types.SideSell && this.Price.GreaterThan(that.Price):
		return -1

	case this.Side == types.SideBuy && this.Price.LessThan(that.Price):
		return -1

	case this.Side == types.SideBuy && this.Price.GreaterThan(that.Price):
		return 1

	default:
		return 0
	}
}

func NewOrderBook(assetID string) *OrderBook {
	ob := &OrderBook{
		AssetID: assetID,
		Bids:    rbt.NewWith(Comparator),
		Asks:    rbt.NewWith(Comparator),
		orders:  make(map[uuid.UUID]*Order, 1024),
	}
	ob.RefreshDepth()

	return ob
}

func (ob *OrderBook) Sequence() uint64 {
	return ob.sequence
}

// NextSequence advances the per-asset mutation sequence.
func (ob *OrderBook) NextSequence() uint64 {
	ob.sequence++
	return ob.sequence
}

func (ob *OrderBook) nextCounter() uint64 {
	ob.counter++
	return ob.counter
}

func (ob *OrderBook) side(side types.OrderSide) *rbt.Tree {
	if side == types.SideSell {
		return ob.Asks
	}
	return ob.Bids
}

func (ob *OrderBook) bestLevel(tree *rbt.Tree) *PriceLevel {
	best := tree.Right()
	if best == nil {
		return nil
	}
	return best.Value.(*PriceLevel)
}

// GetOrder returns a resting order by ID.
func (ob *OrderBook) GetOrder(id uuid.UUID) (*Order, bool) {
	o, found := ob.orders[id]
	return o, found
}

// OpenOrders reports how many orders rest in the book.
func (ob *OrderBook) OpenOrders() int {
	return len(ob.orders)
}

// Match runs one matching pass for the incoming order: it executes against
// the best opposing levels while the crossing condition holds, then rests
// any limit remainder on the order's own side. Execution price is always
// the resting order's price.
func (ob *OrderBook) Match(taker *Order) ([]*Execution, []*LevelDelta) {
	if taker.Counter == 0 {
		taker.Counter = ob.nextCounter()
	}

	var executions []*Execution
	var deltas []*LevelDelta

	var opposing *rbt.Tree
	if taker.IsAsk() {
		opposing = ob.Bids
	} else {
		opposing = ob.Asks
	}

	for !taker.IsFilled() {
		level := ob.bestLevel(opposing)
		if level == nil {
			break
		}

		if !taker.IsCrossed(level.Price) {
			break
		}

		resting := level.Top()
		amount := decimal.Min(taker.UnfilledAmount(), resting.UnfilledAmount())

		taker.Fill(amount)
		resting.Fill(amount)

		seq := ob.NextSequence()
		executions = append(executions, &Execution{
			Trade: &Trade{
				ID:               TradeID(resting.ID, taker.ID, seq),
				AssetID:          ob.AssetID,
				MakerOrderID:     resting.ID,
				TakerOrderID:     taker.ID,
				Maker:            resting.Maker,
				Taker:            taker.Maker,
				MakerSide:        resting.Side,
				Price:            level.Price,
				Amount:           amount,
				Total:            level.Price.Mul(amount),
				Sequence:         seq,
				ExecutedAt:       time.Now(),
				SettlementStatus: types.SettlementPending,
			},
			MakerOrder: *resting,
			TakerOrder: *taker,
		})

		if resting.IsFilled() {
			level.Remove(resting.ID)
			delete(ob.orders, resting.ID)
		}

		deltas = append(deltas, ob.levelDelta(level))

		if level.Empty() {
			opposing.Remove(level.Key())
		}
	}

	if !taker.IsFilled() {
		if taker.Type == types.TypeLimit {
			deltas = append(deltas, ob.levelDelta(ob.rest(taker)))
		} else {
			// Unfilled market remainder never rests.
			taker.Cancelled = true
		}
	}

	ob.RefreshDepth()

	return executions, deltas
}

// rest inserts the order into its own side in price-time priority.
func (ob *OrderBook) rest(o *Order) *PriceLevel {
	tree := ob.side(o.Side)
	key := PriceLevelKey{Side: o.Side, Price: o.Price}

	var level *PriceLevel
	if value, found := tree.Get(key); found {
		level = value.(*PriceLevel)
	} else {
		level = NewPriceLevel(o.Side, o.Price)
		tree.Put(key, level)
	}

	level.Add(o)
	ob.orders[o.ID] = o

	return level
}

// Cancel removes the unfilled remainder of a resting order. Fully filled or
// unknown orders are reported as such; the partial fill that already
// happened stays valid.
func (ob *OrderBook) Cancel(id uuid.UUID) (*Order, *LevelDelta, types.CancelStatus) {
	o, found := ob.orders[id]
	if !found {
		return nil, nil, types.CancelNotFound
	}

	o.Cancelled = true
	delete(ob.orders, id)

	tree := ob.side(o.Side)
	key := PriceLevelKey{Side: o.Side, Price: o.Price}
	value, found := tree.Get(key)
	if !found {
		return o, nil, types.CancelOK
	}

	level := value.(*PriceLevel)
	level.Remove(id)

	delta := ob.levelDelta(level)

	if level.Empty() {
		tree.Remove(key)
	}

	ob.RefreshDepth()

	return o, delta, types.CancelOK
}

func (ob *OrderBook) levelDelta(level *PriceLevel) *LevelDelta {
	return &LevelDelta{
		Sequence: ob.NextSequence(),
		Side:     level.Side,
		Price:    level.Price,
		Amount:   level.Total(),
	}
}

// Crossed reports whether the book violates the no-cross invariant:
// best bid price at or above best ask price.
func (ob *OrderBook) Crossed() bool {
	bid := ob.bestLevel(ob.Bids)
	ask := ob.bestLevel(ob.Asks)
	if bid == nil || ask == nil {
		return false
	}

	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// RefreshDepth rebuilds the copy-on-write depth snapshot. Called by the
// owning lane after every mutation.
func (ob *OrderBook) RefreshDepth() {
	snapshot := &DepthSnapshot{
		AssetID:  ob.AssetID,
		Sequence: ob.sequence,
		Bids:     make([][]decimal.Decimal, 0),
		Asks:     make([][]decimal.Decimal, 0),
	}

	bit := ob.Bids.Iterator()
	bit.End()
	for i := 0; bit.Prev() && i < maxDepthLevels; i++ {
		level := bit.Value().(*PriceLevel)
		snapshot.Bids = append(snapshot.Bids, []decimal.Decimal{level.Price, level.Total()})
	}

	ait := ob.Asks.Iterator()
	ait.End()
	for i := 0; ait.Prev() && i < maxDepthLevels; i++ {
		level := ait.Value().(*PriceLevel)
		snapshot.Asks = append(snapshot.Asks, []decimal.Decimal{level.Price, level.Total()})
	}

	ob.depth.Store(snapshot)
}

// Depth returns the latest copy-on-write snapshot. Safe to call from any
// goroutine.
func (ob *OrderBook) Depth() *DepthSnapshot {
	return ob.depth.Load().(*DepthSnapshot)
}

// EachOrder walks every resting order, best level first, in time priority
// within a level. Used by the snapshot writer.
func (ob *OrderBook) EachOrder(fn func(*Order)) {
	for _, tree := range []*rbt.Tree{ob.Bids, ob.Asks} {
		it := tree.Iterator()
		it.End()
		for it.Prev() {
			level := it.Value().(*PriceLevel)
			for _, o := range level.Orders {
				fn(o)
			}
		}
	}
}

// Restore places an order into the book without matching and advances the
// insertion counter past it. Only recovery may call it: the snapshot is
// trusted to contain a consistent, uncrossed book.
func (ob *OrderBook) Restore(o *Order) {
	if o.Counter > ob.counter {
		ob.counter = o.Counter
	}

	ob.rest(o)
	ob.RefreshDepth()
}

// SetSequence fast-forwards the mutation sequence during recovery.
func (ob *OrderBook) SetSequence(sequence uint64) {
	if sequence > ob.sequence {
		ob.sequence = sequence
	}
}

func (ob *OrderBook) Counter() uint64 {
	return ob.counter
}

// SetCounter fast-forwards the insertion counter during recovery.
func (ob *OrderBook) SetCounter(counter uint64) {
	if counter > ob.counter {
		ob.counter = counter
	}
}

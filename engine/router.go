package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

// Router owns the per-asset lanes and routes operations to them. Cross-asset
// ordering is neither guaranteed nor needed; within an asset the lane queue
// preserves arrival order.
type Router struct {
	journalDir string
	hub        *broadcast.Hub
	sinks      []TradeSink
	alert      AlertFunc

	mu    sync.RWMutex
	lanes map[string]*Lane

	// orderID -> assetID, so a cancel request that carries only the order
	// ID finds its lane.
	index sync.Map
}

func NewRouter(journalDir string, hub *broadcast.Hub, alert AlertFunc, sinks ...TradeSink) *Router {
	if alert == nil {
		alert = func(assetID, message string) {
			config.Logger.Errorf("[engine] alert %s: %s", assetID, message)
		}
	}

	return &Router{
		journalDir: journalDir,
		hub:        hub,
		sinks:      sinks,
		alert:      alert,
		lanes:      make(map[string]*Lane),
	}
}

// AddSink registers another execution consumer. Must be called before
// AddAsset; lanes capture the sink list when they start.
func (r *Router) AddSink(sink TradeSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks = append(r.sinks, sink)
}

// AddAsset starts (and recovers) the lane for one asset. Idempotent.
func (r *Router) AddAsset(assetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.lanes[assetID]; found {
		return nil
	}

	lane, err := newLane(r.journalDir, assetID, r.hub, r.sinks, r.alert)
	if err != nil {
		return err
	}

	// Recovered resting orders must stay cancellable: rebuild their
	// index entries from the restored book.
	lane.Book().EachOrder(func(o *matching.Order) {
		r.index.Store(o.ID, assetID)
	})

	r.lanes[assetID] = lane
	config.Logger.Infof("[engine] %s lane started", assetID)

	return nil
}

func (r *Router) lane(assetID string) *Lane {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lanes[assetID]
}

func (r *Router) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assets := make([]string, 0, len(r.lanes))
	for assetID := range r.lanes {
		assets = append(assets, assetID)
	}

	return assets
}

func validateOrder(order *matching.Order) error {
	if order.Side != types.SideBuy && order.Side != types.SideSell {
		return Reject(types.RejectInvalidSide)
	}

	if !order.Amount.IsPositive() {
		return Reject(types.RejectInvalidAmount)
	}

	switch order.Type {
	case types.TypeMarket:
		if order.Price.IsPositive() {
			return Reject(types.RejectInvalidPrice)
		}
	case "", types.TypeLimit:
		order.Type = types.TypeLimit
		if !order.Price.IsPositive() {
			return Reject(types.RejectInvalidPrice)
		}
	default:
		return Reject(types.RejectInvalidPrice)
	}

	return nil
}

// Submit validates the order synchronously and hands it to its asset's
// lane. The reply arrives once the pass is journaled.
func (r *Router) Submit(ctx context.Context, order *matching.Order) (Result, error) {
	if err := validateOrder(order); err != nil {
		return Result{}, err
	}

	lane := r.lane(order.AssetID)
	if lane == nil {
		return Result{}, Reject(types.RejectUnknownAsset)
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	r.index.Store(order.ID, order.AssetID)

	res := lane.enqueue(ctx, op{kind: opSubmit, order: order, reply: make(chan Result, 1)})
	if res.Err != nil {
		r.index.Delete(order.ID)
		return res, res.Err
	}

	if status := order.Status(); status == types.StatusFilled || status == types.StatusCancelled {
		r.index.Delete(order.ID)
	}

	return res, nil
}

// Cancel resolves against the order's current state when the lane processes
// it: anything already matched ahead of the cancel in the queue stays
// matched, only the unfilled remainder is removed.
func (r *Router) Cancel(ctx context.Context, orderID uuid.UUID) (Result, error) {
	value, found := r.index.Load(orderID)
	if !found {
		return Result{CancelStatus: types.CancelNotFound}, nil
	}

	lane := r.lane(value.(string))
	if lane == nil {
		return Result{CancelStatus: types.CancelNotFound}, nil
	}

	res := lane.enqueue(ctx, op{kind: opCancel, cancelID: orderID, reply: make(chan Result, 1)})
	if res.Err != nil {
		return res, res.Err
	}

	if res.CancelStatus == types.CancelOK {
		r.index.Delete(orderID)
	}

	return res, nil
}

// Reinstate puts a failed trade's amount back into the book as a new
// resting order for the maker, priced and timestamped as of the
// reconciliation.
func (r *Router) Reinstate(ctx context.Context, trade *matching.Trade) (Result, error) {
	lane := r.lane(trade.AssetID)
	if lane == nil {
		return Result{}, Reject(types.RejectUnknownAsset)
	}

	order := &matching.Order{
		ID:        uuid.New(),
		AssetID:   trade.AssetID,
		Maker:     trade.Maker,
		Side:      trade.MakerSide,
		Type:      types.TypeLimit,
		Price:     trade.Price,
		Amount:    trade.Amount,
		CreatedAt: time.Now(),
	}

	r.index.Store(order.ID, order.AssetID)

	res := lane.enqueue(ctx, op{kind: opReinstate, order: order, reply: make(chan Result, 1)})
	if res.Err != nil {
		r.index.Delete(order.ID)
		return res, res.Err
	}

	if status := order.Status(); status == types.StatusFilled || status == types.StatusCancelled {
		r.index.Delete(order.ID)
	}

	return res, nil
}

// RecordSettlement journals a settlement-status transition on the trade's
// asset lane and publishes it to subscribers.
func (r *Router) RecordSettlement(ctx context.Context, assetID string, tr *SettlementTransition) error {
	lane := r.lane(assetID)
	if lane == nil {
		return Reject(types.RejectUnknownAsset)
	}

	res := lane.enqueue(ctx, op{kind: opSettlement, settlement: tr, reply: make(chan Result, 1)})
	return res.Err
}

// Depth serves the aggregated book from the lane's copy-on-write snapshot;
// it never blocks matching.
func (r *Router) Depth(assetID string, levels int) (*matching.DepthSnapshot, error) {
	lane := r.lane(assetID)
	if lane == nil {
		return nil, Reject(types.RejectUnknownAsset)
	}

	return lane.Book().Depth().Limit(levels), nil
}

// TopOfBook returns the best bid and ask levels as [price, amount] pairs;
// either may be nil when that side is empty.
func (r *Router) TopOfBook(assetID string) ([]decimal.Decimal, []decimal.Decimal, error) {
	lane := r.lane(assetID)
	if lane == nil {
		return nil, nil, Reject(types.RejectUnknownAsset)
	}

	depth := lane.Book().Depth()
	return depth.BestBid(), depth.BestAsk(), nil
}

// Close stops every lane, taking a final snapshot per asset.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for assetID, lane := range r.lanes {
		lane.close()
		delete(r.lanes, assetID)
	}
}

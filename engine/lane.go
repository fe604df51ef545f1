package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/journal"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

const (
	laneQueueSize = 1024

	// A snapshot is taken every snapshotEvery journaled events or every
	// snapshotPeriod, whichever comes first.
	snapshotEvery  = 500
	snapshotPeriod = 30 * time.Second
)

var ErrLaneClosed = errors.New("engine: lane closed")

// Lane owns one asset's book. Every operation against the asset flows
// through its FIFO queue, so exactly one matching pass is in flight per
// asset at any time. Lanes for different assets run fully in parallel.
type Lane struct {
	assetID string

	book atomic.Pointer[matching.OrderBook]
	log  *journal.Journal

	journalDir string
	hub        *broadcast.Hub
	sinks      []TradeSink
	alert      AlertFunc

	ops  chan op
	quit chan struct{}
	done chan struct{}

	sinceSnapshot int
}

func newLane(journalDir, assetID string, hub *broadcast.Hub, sinks []TradeSink, alert AlertFunc) (*Lane, error) {
	l := &Lane{
		assetID:    assetID,
		journalDir: journalDir,
		hub:        hub,
		sinks:      sinks,
		alert:      alert,
		ops:        make(chan op, laneQueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if err := l.recover(); err != nil {
		return nil, err
	}

	log, err := journal.Open(journalDir, assetID)
	if err != nil {
		return nil, err
	}
	l.log = log

	// Tell the hub where the stream resumes, so subscribers asking for
	// sequences the ring never held are sent to resync instead of
	// silently missing the pre-restart history.
	if seq := l.book.Load().Sequence(); seq > 0 {
		hub.Seed(assetID, seq)
	}

	go l.run()

	return l, nil
}

// Book returns the lane's live order book. Only its copy-on-write reads
// (Depth) are safe off-lane.
func (l *Lane) Book() *matching.OrderBook {
	return l.book.Load()
}

// recover rebuilds the book from the latest snapshot plus journal replay.
func (l *Lane) recover() error {
	snap, err := journal.LoadSnapshot(l.journalDir, l.assetID)
	if err != nil {
		return err
	}

	book := journal.RestoreBook(l.assetID, snap)

	var after uint64
	if snap != nil {
		after = snap.Sequence
	}

	last, err := journal.Replay(l.journalDir, l.assetID, after, func(rec *journal.Record) error {
		return applyRecord(book, rec)
	})
	if err != nil {
		return err
	}

	book.SetSequence(last)
	book.RefreshDepth()
	l.book.Store(book)

	config.Logger.Infof("[engine] %s book recovered at seq %d with %d open orders", l.assetID, book.Sequence(), book.OpenOrders())

	return nil
}

// applyRecord re-runs one journaled mutation against the book. Matching is
// deterministic, so replay regenerates the exact sequences and trade IDs;
// no events are re-emitted and no trades are re-submitted for settlement.
func applyRecord(book *matching.OrderBook, rec *journal.Record) error {
	switch rec.Op {
	case types.ActionSubmit, types.ActionReinstate:
		var o matching.Order
		if err := json.Unmarshal(rec.Payload, &o); err != nil {
			return err
		}
		book.Match(&o)

	case types.ActionCancel:
		var p cancelPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		book.Cancel(p.OrderID)

	case types.ActionSettlement:
		// No book effect; the transition consumed a sequence number.
	}

	book.SetSequence(rec.Sequence)

	return nil
}

func (l *Lane) run() {
	defer close(l.done)

	ticker := time.NewTicker(snapshotPeriod)
	defer ticker.Stop()

	for {
		select {
		case o := <-l.ops:
			l.process(o)

			if l.sinceSnapshot >= snapshotEvery {
				l.snapshot()
			}

		case <-ticker.C:
			if l.sinceSnapshot > 0 {
				l.snapshot()
			}

		case <-l.quit:
			l.snapshot()
			l.drain()
			return
		}
	}
}

// drain fails every op still queued at shutdown so callers unblock
// instead of waiting out their contexts.
func (l *Lane) drain() {
	for {
		select {
		case o := <-l.ops:
			o.reply <- Result{Err: ErrLaneClosed}
		default:
			return
		}
	}
}

func (l *Lane) process(o op) {
	switch o.kind {
	case opSubmit:
		o.reply <- l.processSubmit(o.order, types.ActionSubmit)
	case opReinstate:
		o.reply <- l.processSubmit(o.order, types.ActionReinstate)
	case opCancel:
		o.reply <- l.processCancel(o.cancelID)
	case opSettlement:
		o.reply <- l.processSettlement(o.settlement)
	}
}

func (l *Lane) processSubmit(order *matching.Order, action types.PayloadAction) Result {
	book := l.book.Load()

	// The journal carries the pre-match order so replay re-runs the pass.
	payload, err := json.Marshal(order)
	if err != nil {
		return Result{Err: err}
	}

	executions, deltas := book.Match(order)

	if err := l.append(action, book.Sequence(), payload); err != nil {
		// The book already matched but the journal did not record it;
		// serving the mutated book would lose the pass on recovery.
		l.rebuild("journal append failed, discarding unjournaled pass")
		return Result{Err: err}
	}

	l.emit(executions, deltas)

	for _, exec := range executions {
		for _, sink := range l.sinks {
			sink.Submit(exec)
		}
	}

	if book.Crossed() {
		l.rebuild("book crossed after matching pass")
	}

	trades := make([]*matching.Trade, 0, len(executions))
	for _, exec := range executions {
		trades = append(trades, exec.Trade)
	}

	return Result{Order: order, Trades: trades}
}

func (l *Lane) processCancel(id uuid.UUID) Result {
	book := l.book.Load()

	payload, err := json.Marshal(cancelPayload{OrderID: id})
	if err != nil {
		return Result{Err: err}
	}

	order, delta, status := book.Cancel(id)
	if status != types.CancelOK {
		return Result{CancelStatus: status}
	}

	if err := l.append(types.ActionCancel, book.Sequence(), payload); err != nil {
		l.rebuild("journal append failed, discarding unjournaled cancel")
		return Result{Err: err}
	}

	if delta != nil {
		l.hub.Publish(&broadcast.Event{
			Type:     types.EventDelta,
			AssetID:  l.assetID,
			Sequence: delta.Sequence,
			Payload:  delta,
		})
	}

	return Result{Order: order, CancelStatus: status}
}

func (l *Lane) processSettlement(tr *SettlementTransition) Result {
	book := l.book.Load()

	payload, err := json.Marshal(tr)
	if err != nil {
		return Result{Err: err}
	}

	seq := book.NextSequence()
	if err := l.append(types.ActionSettlement, seq, payload); err != nil {
		l.rebuild("journal append failed, rewinding unjournaled sequence")
		return Result{Err: err}
	}

	l.hub.Publish(&broadcast.Event{
		Type:     types.EventSettlement,
		AssetID:  l.assetID,
		Sequence: seq,
		Payload:  tr,
	})

	return Result{}
}

func (l *Lane) append(action types.PayloadAction, sequence uint64, payload []byte) error {
	err := l.log.Append(&journal.Record{
		Sequence:  sequence,
		AssetID:   l.assetID,
		Op:        action,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		config.Logger.Errorf("[engine] %s journal append failed: %v", l.assetID, err)
		l.alert(l.assetID, "journal append failed: "+err.Error())
		return err
	}

	l.sinceSnapshot++

	return nil
}

// emit publishes trade and delta events in production order.
func (l *Lane) emit(executions []*matching.Execution, deltas []*matching.LevelDelta) {
	i, j := 0, 0
	for i < len(executions) || j < len(deltas) {
		if j >= len(deltas) || (i < len(executions) && executions[i].Trade.Sequence < deltas[j].Sequence) {
			trade := executions[i].Trade
			l.hub.Publish(&broadcast.Event{
				Type:     types.EventTrade,
				AssetID:  l.assetID,
				Sequence: trade.Sequence,
				Payload:  trade,
			})
			i++
			continue
		}

		delta := deltas[j]
		l.hub.Publish(&broadcast.Event{
			Type:     types.EventDelta,
			AssetID:  l.assetID,
			Sequence: delta.Sequence,
			Payload:  delta,
		})
		j++
	}
}

func (l *Lane) snapshot() {
	book := l.book.Load()

	snap := journal.TakeSnapshot(book)
	if err := journal.WriteSnapshot(l.journalDir, snap); err != nil {
		config.Logger.Errorf("[engine] %s snapshot failed: %v", l.assetID, err)
		return
	}
	if err := l.log.Rotate(); err != nil {
		config.Logger.Errorf("[engine] %s journal rotate failed: %v", l.assetID, err)
		return
	}

	l.sinceSnapshot = 0
	config.Logger.Debugf("[engine] %s snapshot written at seq %d", l.assetID, snap.Sequence)
}

// rebuild recovers the book from the last snapshot plus replay after an
// invariant violation. Never silent: the operator is alerted either way.
func (l *Lane) rebuild(reason string) {
	config.Logger.Errorf("[engine] %s %s, rebuilding", l.assetID, reason)
	l.alert(l.assetID, reason+"; rebuilding from last snapshot")

	if err := l.recover(); err != nil {
		l.alert(l.assetID, "rebuild failed: "+err.Error())
		return
	}

	if l.book.Load().Crossed() {
		l.alert(l.assetID, "book still crossed after rebuild; operator intervention required")
	}
}

func (l *Lane) enqueue(ctx context.Context, o op) Result {
	select {
	case l.ops <- o:
	case <-l.quit:
		return Result{Err: ErrLaneClosed}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}

	select {
	case res := <-o.reply:
		return res
	case <-l.done:
		// Shutdown raced the send; the drain either answered already or
		// the op never reached the queue it was draining.
		select {
		case res := <-o.reply:
			return res
		default:
			return Result{Err: ErrLaneClosed}
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

func (l *Lane) close() {
	close(l.quit)
	<-l.done
	l.log.Close()
}

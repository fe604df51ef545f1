package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/engine"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

const (
	queueCapacity = 4096

	// Submission retry policy: base 1s, factor 2, capped attempts.
	submitBackoffBase = time.Second
	submitMaxRetries  = 3

	defaultConfirmWait = 30 * time.Second
)

var errStillPending = errors.New("settlement: still pending")

// Book is the slice of the matching engine the coordinator needs: putting
// an unwound trade back and journaling settlement transitions.
type Book interface {
	Reinstate(ctx context.Context, trade *matching.Trade) (engine.Result, error)
	RecordSettlement(ctx context.Context, assetID string, tr *engine.SettlementTransition) error
}

// Coordinator turns matched trades into finalized external transactions
// without double-submission and without ever blocking a matching lane.
type Coordinator struct {
	client Client
	outbox *Outbox
	book   Book
	alert  engine.AlertFunc

	// onTransition lets the caller persist and mirror settlement
	// transitions (database row, Kafka topic). Optional.
	onTransition func(assetID string, tr *engine.SettlementTransition)

	confirmWait time.Duration
	submitBase  time.Duration
	pollBase    time.Duration

	queue    chan *matching.Trade
	inflight sync.Map

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewCoordinator(client Client, outbox *Outbox, book Book, alert engine.AlertFunc) *Coordinator {
	if alert == nil {
		alert = func(assetID, message string) {
			config.Logger.Errorf("[settlement] alert %s: %s", assetID, message)
		}
	}

	return &Coordinator{
		client:      client,
		outbox:      outbox,
		book:        book,
		alert:       alert,
		confirmWait: defaultConfirmWait,
		submitBase:  submitBackoffBase,
		pollBase:    time.Second,
		queue:       make(chan *matching.Trade, queueCapacity),
		quit:        make(chan struct{}),
	}
}

// OnTransition registers a hook invoked after every recorded settlement
// transition. Must be set before Start.
func (c *Coordinator) OnTransition(fn func(assetID string, tr *engine.SettlementTransition)) {
	c.onTransition = fn
}

// Submit implements engine.TradeSink: fire-and-forget from the lane's point
// of view. A full queue is alerted, never blocked on; the trade's pending
// entry must reach the outbox before it leaves memory, or the next resume
// scan has nothing to re-drive.
func (c *Coordinator) Submit(exec *matching.Execution) {
	select {
	case c.queue <- exec.Trade:
	default:
		entry, err := c.outbox.Get(exec.Trade.ID)
		if err == nil && entry == nil {
			err = c.outbox.Put(&Entry{Trade: exec.Trade, State: types.SettlementPending})
		}
		if err != nil {
			config.Logger.Errorf("[settlement] outbox write %s: %v", exec.Trade.ID, err)
			c.alert(exec.Trade.AssetID, "settlement queue full and outbox write failed for trade "+exec.Trade.ID.String())
			return
		}

		c.alert(exec.Trade.AssetID, "settlement queue full, trade "+exec.Trade.ID.String()+" deferred to outbox resume")
	}
}

// Start launches the worker pool and re-drives every outbox entry that was
// still pending when the process last stopped.
func (c *Coordinator) Start(workers int) error {
	if workers <= 0 {
		workers = 4
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}

	return c.outbox.ScanPending(func(entry *Entry) error {
		select {
		case c.queue <- entry.Trade:
		default:
			c.alert(entry.Trade.AssetID, "settlement queue full during resume")
		}
		return nil
	})
}

func (c *Coordinator) Stop() {
	close(c.quit)
	c.wg.Wait()
}

func (c *Coordinator) worker() {
	defer c.wg.Done()

	for {
		select {
		case trade := <-c.queue:
			c.process(trade)
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) process(trade *matching.Trade) {
	if _, loaded := c.inflight.LoadOrStore(trade.ID, struct{}{}); loaded {
		return
	}
	defer c.inflight.Delete(trade.ID)

	entry, err := c.outbox.Get(trade.ID)
	if err != nil {
		config.Logger.Errorf("[settlement] outbox read %s: %v", trade.ID, err)
		return
	}

	// Already resolved: a resubmission of the same trade ID is a no-op.
	if entry != nil && entry.State != types.SettlementPending {
		return
	}

	if entry == nil {
		entry = &Entry{Trade: trade, State: types.SettlementPending}
		if err := c.outbox.Put(entry); err != nil {
			config.Logger.Errorf("[settlement] outbox write %s: %v", trade.ID, err)
			return
		}
	}

	if entry.TxRef == "" {
		if !c.submit(entry) {
			// Never accepted externally, so neither balance moved: the
			// trade's amount can safely go back into the book.
			c.fail(entry, true)
			return
		}
	}

	status := c.awaitConfirmation(entry.Trade.ID)
	switch {
	case status == nil:
		// Outcome unknown within the bounded wait. Not safe to unwind;
		// leave the entry pending so a restart re-drives it, and tell the
		// operator.
		c.alert(entry.Trade.AssetID, "trade "+entry.Trade.ID.String()+" settlement unresolved after bounded wait")

	case status.State == types.SettlementConfirmed:
		c.confirm(entry, status)

	case status.State == types.SettlementFailed:
		c.fail(entry, status.Unwindable)
	}
}

// submit pushes the trade to the collaborator with exponential backoff.
// Returns false when all retries are exhausted.
func (c *Coordinator) submit(entry *Entry) bool {
	wait := c.submitBase

	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		txRef, err := c.client.SubmitTrade(ctx, entry.Trade)
		cancel()

		entry.Retries++
		entry.LastAttempt = time.Now().UnixNano()

		if err == nil {
			entry.TxRef = txRef
			if err := c.outbox.Put(entry); err != nil {
				config.Logger.Errorf("[settlement] outbox write %s: %v", entry.Trade.ID, err)
			}
			return true
		}

		config.Logger.Warnf("[settlement] submit %s attempt %d: %v", entry.Trade.ID, attempt+1, err)
		if err := c.outbox.Put(entry); err != nil {
			config.Logger.Errorf("[settlement] outbox write %s: %v", entry.Trade.ID, err)
		}

		if attempt >= submitMaxRetries {
			return false
		}

		select {
		case <-time.After(wait):
		case <-c.quit:
			return false
		}
		wait *= 2
	}
}

// awaitConfirmation polls the collaborator until the trade leaves pending,
// backing off exponentially within the bounded wait. Nil means the bound
// expired with the outcome still unknown.
func (c *Coordinator) awaitConfirmation(tradeID uuid.UUID) *Status {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollBase
	bo.Multiplier = 2
	bo.MaxElapsedTime = c.confirmWait

	var status *Status
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := c.client.GetTradeStatus(ctx, tradeID)
		if err != nil {
			return err
		}
		if s.State == types.SettlementPending {
			return errStillPending
		}

		status = s
		return nil
	}, bo)
	if err != nil {
		return nil
	}

	return status
}

func (c *Coordinator) confirm(entry *Entry, status *Status) {
	entry.State = types.SettlementConfirmed
	if status.TxRef != "" {
		entry.TxRef = status.TxRef
	}
	if err := c.outbox.Put(entry); err != nil {
		config.Logger.Errorf("[settlement] outbox write %s: %v", entry.Trade.ID, err)
	}

	c.record(entry.Trade.AssetID, &engine.SettlementTransition{
		TradeID: entry.Trade.ID,
		Status:  types.SettlementConfirmed,
		TxRef:   entry.TxRef,
	})

	config.Logger.Infof("[settlement] trade %s confirmed (%s)", entry.Trade.ID, entry.TxRef)
}

func (c *Coordinator) fail(entry *Entry, unwindable bool) {
	entry.State = types.SettlementFailed
	if err := c.outbox.Put(entry); err != nil {
		config.Logger.Errorf("[settlement] outbox write %s: %v", entry.Trade.ID, err)
	}

	c.record(entry.Trade.AssetID, &engine.SettlementTransition{
		TradeID: entry.Trade.ID,
		Status:  types.SettlementFailed,
		TxRef:   entry.TxRef,
	})

	if !unwindable {
		c.alert(entry.Trade.AssetID, "trade "+entry.Trade.ID.String()+" settlement failed and cannot be unwound; manual reconciliation required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.book.Reinstate(ctx, entry.Trade); err != nil {
		c.alert(entry.Trade.AssetID, "trade "+entry.Trade.ID.String()+" unwind failed: "+err.Error())
		return
	}

	config.Logger.Infof("[settlement] trade %s failed, amount reinstated into book", entry.Trade.ID)
}

func (c *Coordinator) record(assetID string, tr *engine.SettlementTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.book.RecordSettlement(ctx, assetID, tr); err != nil {
		config.Logger.Errorf("[settlement] record transition %s: %v", tr.TradeID, err)
	}

	if c.onTransition != nil {
		c.onTransition(assetID, tr)
	}
}

package engines

import (
	"encoding/json"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/models"
)

const (
	TopicTrades = "marketx.trades"
	TopicAlerts = "marketx.alerts"

	tradeQueueSize = 4096
)

// TradeExecutorWorker drains executions off the matching lanes, persists the
// trade and both order states, and mirrors the trade onto the platform topic.
// It implements engine.TradeSink.
type TradeExecutorWorker struct {
	queue chan *matching.Execution
	quit  chan struct{}
	done  chan struct{}
}

func NewTradeExecutorWorker() *TradeExecutorWorker {
	return &TradeExecutorWorker{
		queue: make(chan *matching.Execution, tradeQueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Submit hands an execution to the worker. Called from lane goroutines, so it
// must not block; a full queue is dropped with an error since the durable
// record is already in the journal.
func (w *TradeExecutorWorker) Submit(exec *matching.Execution) {
	select {
	case w.queue <- exec:
	default:
		config.Logger.Errorf("trade executor queue full, dropping trade %s", exec.Trade.ID)
	}
}

func (w *TradeExecutorWorker) Start() {
	go func() {
		defer close(w.done)

		for {
			select {
			case exec := <-w.queue:
				if err := w.Process(exec); err != nil {
					config.Logger.Errorf("trade executor: %v", err)
				}
			case <-w.quit:
				for {
					select {
					case exec := <-w.queue:
						if err := w.Process(exec); err != nil {
							config.Logger.Errorf("trade executor: %v", err)
						}
					default:
						return
					}
				}
			}
		}
	}()
}

func (w *TradeExecutorWorker) Process(exec *matching.Execution) error {
	if err := models.CreateTrade(exec.Trade); err != nil {
		return err
	}

	if err := models.UpsertOrder(&exec.MakerOrder); err != nil {
		return err
	}

	if err := models.UpsertOrder(&exec.TakerOrder); err != nil {
		return err
	}

	payload, err := json.Marshal(exec.Trade)
	if err != nil {
		return err
	}

	return config.Kafka.Publish(TopicTrades, []byte(exec.Trade.AssetID), payload)
}

func (w *TradeExecutorWorker) Stop() {
	close(w.quit)
	<-w.done
}

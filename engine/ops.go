package engine

import (
	"github.com/google/uuid"

	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

type opKind int

const (
	opSubmit opKind = iota
	opCancel
	opReinstate
	opSettlement
)

type op struct {
	kind       opKind
	order      *matching.Order
	cancelID   uuid.UUID
	settlement *SettlementTransition
	reply      chan Result
}

// Result is the synchronous acknowledgement for one lane operation.
type Result struct {
	Order        *matching.Order
	Trades       []*matching.Trade
	CancelStatus types.CancelStatus
	Err          error
}

// SettlementTransition is the journaled settlement-status change for one
// trade. It consumes a sequence number like any other mutation so
// subscribers see it in order.
type SettlementTransition struct {
	TradeID uuid.UUID              `json:"trade_id"`
	Status  types.SettlementStatus `json:"status"`
	TxRef   string                 `json:"tx_ref"`
}

// TradeSink consumes executions without blocking the matching lane.
type TradeSink interface {
	Submit(execution *matching.Execution)
}

// AlertFunc surfaces conditions an operator must see.
type AlertFunc func(assetID, message string)

// Rejection is a synchronous validation failure: the order never reached
// the book.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

func Reject(reason string) error {
	return &Rejection{Reason: reason}
}

type cancelPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

package types

type OrderSide = string

var (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType = string

var (
	TypeLimit  OrderType = "limit"
	TypeMarket OrderType = "market"
)

type OrderStatus = string

var (
	StatusOpen      OrderStatus = "open"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

type CancelStatus = string

var (
	CancelOK            CancelStatus = "cancelled"
	CancelNotFound      CancelStatus = "not_found"
	CancelAlreadyFilled CancelStatus = "already_filled"
)

type SettlementStatus = string

var (
	SettlementPending   SettlementStatus = "pending"
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementFailed    SettlementStatus = "failed"
)

type PayloadAction = string

var (
	ActionSubmit     PayloadAction = "submit"
	ActionCancel     PayloadAction = "cancel"
	ActionReinstate  PayloadAction = "reinstate"
	ActionSettlement PayloadAction = "settlement"
)

// Event kinds pushed over the subscription channel.
type EventKind = string

var (
	EventDelta      EventKind = "delta"
	EventTrade      EventKind = "trade"
	EventSnapshot   EventKind = "snapshot"
	EventResync     EventKind = "resync"
	EventSettlement EventKind = "settlement"
)

// Rejection reasons returned on order submission.
var (
	RejectInvalidPrice  = "invalid_price"
	RejectInvalidAmount = "invalid_amount"
	RejectInvalidSide   = "invalid_side"
	RejectInvalidType   = "invalid_type"
	RejectUnknownAsset  = "unknown_asset"
)

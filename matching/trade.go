package matching

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/types"
)

// Trade represents two opposed matched orders. It is immutable after the
// matching pass that produced it, except for SettlementStatus which is owned
// by the settlement coordinator.
type Trade struct {
	ID               uuid.UUID              `json:"id"`
	AssetID          string                 `json:"asset_id"`
	MakerOrderID     uuid.UUID              `json:"maker_order_id"`
	TakerOrderID     uuid.UUID              `json:"taker_order_id"`
	Maker            string                 `json:"maker"`
	Taker            string                 `json:"taker"`
	MakerSide        types.OrderSide        `json:"maker_side"`
	Price            decimal.Decimal        `json:"price"`
	Amount           decimal.Decimal        `json:"amount"`
	Total            decimal.Decimal        `json:"total"`
	Sequence         uint64                 `json:"sequence"`
	ExecutedAt       time.Time              `json:"executed_at"`
	SettlementStatus types.SettlementStatus `json:"settlement_status"`
}

// Execution pairs a trade with the post-fill state of both orders, for the
// consumers downstream of the matching pass (settlement, persistence,
// event mirror).
type Execution struct {
	Trade      *Trade `json:"trade"`
	MakerOrder Order  `json:"maker_order"`
	TakerOrder Order  `json:"taker_order"`
}

var tradeNamespace = uuid.MustParse("7d9cc4e5-0a44-4cfd-86c2-1a1c4d2e6f3b")

// TradeID derives the trade identifier from the matched order pair and the
// book sequence, so a replayed pass regenerates identical IDs and the
// settlement collaborator can treat resubmissions as no-ops.
func TradeID(makerOrderID, takerOrderID uuid.UUID, sequence uint64) uuid.UUID {
	name := makerOrderID.String() + "|" + takerOrderID.String() + "|" + strconv.FormatUint(sequence, 10)
	return uuid.NewSHA1(tradeNamespace, []byte(name))
}

package matching

import (
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/types"
)

// maxDepthLevels caps how many aggregated price levels a snapshot carries.
const maxDepthLevels = 300

// DepthSnapshot is an immutable copy of the aggregated book, rebuilt by the
// owning lane after every mutation and served to readers without touching
// the live trees.
type DepthSnapshot struct {
	AssetID  string              `json:"asset_id"`
	Sequence uint64              `json:"sequence"`
	Bids     [][]decimal.Decimal `json:"bids"`
	Asks     [][]decimal.Decimal `json:"asks"`
}

// Limit returns a copy truncated to the requested number of levels per side.
func (s *DepthSnapshot) Limit(levels int) *DepthSnapshot {
	if levels <= 0 || (levels >= len(s.Bids) && levels >= len(s.Asks)) {
		return s
	}

	out := &DepthSnapshot{
		AssetID:  s.AssetID,
		Sequence: s.Sequence,
		Bids:     s.Bids,
		Asks:     s.Asks,
	}
	if levels < len(out.Bids) {
		out.Bids = out.Bids[:levels]
	}
	if levels < len(out.Asks) {
		out.Asks = out.Asks[:levels]
	}

	return out
}

// BestBid returns the top bid level, or nil when the side is empty.
func (s *DepthSnapshot) BestBid() []decimal.Decimal {
	if len(s.Bids) == 0 {
		return nil
	}
	return s.Bids[0]
}

// BestAsk returns the top ask level, or nil when the side is empty.
func (s *DepthSnapshot) BestAsk() []decimal.Decimal {
	if len(s.Asks) == 0 {
		return nil
	}
	return s.Asks[0]
}

// LevelDelta reports the new aggregate amount resting at one price level
// after a book mutation. Amount zero means the level is gone.
type LevelDelta struct {
	Sequence uint64          `json:"sequence"`
	Side     types.OrderSide `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
}

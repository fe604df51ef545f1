package matching

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/types"
)

// PriceLevel holds the resting orders at one price, in time priority.
// It has a single writer: the lane that owns the book.
type PriceLevel struct {
	Side   types.OrderSide
	Price  decimal.Decimal
	Orders []*Order
}

type PriceLevelKey struct {
	Side  types.OrderSide
	Price decimal.Decimal
}

func NewPriceLevel(side types.OrderSide, price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Side:   side,
		Price:  price,
		Orders: make([]*Order, 0),
	}
}

func (p *PriceLevel) Key() PriceLevelKey {
	return PriceLevelKey{
		Side:  p.Side,
		Price: p.Price,
	}
}

func (p *PriceLevel) Add(order *Order) {
	for _, o := range p.Orders {
		if o.ID == order.ID {
			return
		}
	}

	p.Orders = append(p.Orders, order)
	sort.Slice(p.Orders, func(i, j int) bool {
		return p.Orders[i].Counter < p.Orders[j].Counter
	})
}

func (p *PriceLevel) Top() *Order {
	if p.Empty() {
		return nil
	}

	return p.Orders[0]
}

func (p *PriceLevel) Empty() bool {
	return len(p.Orders) == 0
}

func (p *PriceLevel) Size() int {
	return len(p.Orders)
}

func (p *PriceLevel) Total() decimal.Decimal {
	total := decimal.Zero

	for _, order := range p.Orders {
		total = total.Add(order.UnfilledAmount())
	}

	return total
}

func (p *PriceLevel) Remove(id uuid.UUID) *Order {
	for index, o := range p.Orders {
		if o.ID == id {
			p.Orders = append(p.Orders[:index], p.Orders[index+1:]...)
			return o
		}
	}

	return nil
}

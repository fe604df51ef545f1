package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetra/marketx/types"
)

func validParams() *CreateOrderParams {
	return &CreateOrderParams{
		AssetID: "asset",
		Side:    types.SideBuy,
		Type:    types.TypeLimit,
		Price:   decimal.NewNullDecimal(decimal.NewFromFloat(10.0)),
		Amount:  decimal.NewFromInt(5),
		Maker:   "alice",
	}
}

func TestCreateOrderParamsValid(t *testing.T) {
	errs := new(Errors)
	Validate(validParams(), errs)
	assert.Zero(t, errs.Size())
}

func TestCreateOrderParamsRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateOrderParams)
		reason string
	}{
		{"bad side", func(p *CreateOrderParams) { p.Side = "hold" }, types.RejectInvalidSide},
		{"zero amount", func(p *CreateOrderParams) { p.Amount = decimal.Zero }, types.RejectInvalidAmount},
		{"negative price", func(p *CreateOrderParams) {
			p.Price = decimal.NewNullDecimal(decimal.NewFromInt(-1))
		}, types.RejectInvalidPrice},
		{"limit without price", func(p *CreateOrderParams) {
			p.Price = decimal.NullDecimal{}
		}, types.RejectInvalidType},
		{"market with price", func(p *CreateOrderParams) {
			p.Type = types.TypeMarket
		}, types.RejectInvalidType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(params)

			errs := new(Errors)
			Validate(params, errs)

			require.NotZero(t, errs.Size())
			assert.Contains(t, errs.Errors, tc.reason)
		})
	}
}

func TestBuildOrderDefaultsToLimit(t *testing.T) {
	params := validParams()
	params.Type = ""

	order := params.BuildOrder()
	assert.Equal(t, types.TypeLimit, order.Type)
	assert.Equal(t, "asset", order.AssetID)
	assert.Equal(t, "alice", order.Maker)
	assert.True(t, order.Price.Equal(decimal.NewFromFloat(10.0)))
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(5)))
}

func TestBuildOrderMarketHasNoPrice(t *testing.T) {
	params := validParams()
	params.Type = types.TypeMarket
	params.Price = decimal.NullDecimal{}

	errs := new(Errors)
	Validate(params, errs)
	assert.Zero(t, errs.Size())

	order := params.BuildOrder()
	assert.Equal(t, types.TypeMarket, order.Type)
	assert.True(t, order.Price.IsZero())
}

package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/assetra/marketx/controllers/entities"
	"github.com/assetra/marketx/controllers/helpers"
	"github.com/assetra/marketx/engine"
	"github.com/assetra/marketx/models"
)

func GetTimestamp(c *fiber.Ctx) error {
	return c.Status(200).JSON(time.Now())
}

func GetDepth(c *fiber.Ctx) error {
	asset := c.Params("asset")
	limit, _ := strconv.Atoi(c.Query("limit"))

	depth, err := Router.Depth(asset, limit)
	if err != nil {
		var rejection *engine.Rejection
		if errors.As(err, &rejection) {
			return c.Status(404).JSON(helpers.Errors{
				Errors: []string{rejection.Reason},
			})
		}

		return c.Status(500).JSON(helpers.Errors{
			Errors: []string{"server.internal_error"},
		})
	}

	return c.Status(200).JSON(depth)
}

func GetTrades(c *fiber.Ctx) error {
	asset := c.Params("asset")
	limit, _ := strconv.Atoi(c.Query("limit"))

	trades := models.RecentTrades(asset, limit)

	trades_json := make([]entities.TradeEntity, 0, len(trades))
	for i := range trades {
		trades_json = append(trades_json, entities.TradeToEntity(&trades[i]))
	}

	return c.Status(200).JSON(trades_json)
}

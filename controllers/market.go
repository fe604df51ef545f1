package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/controllers/entities"
	"github.com/assetra/marketx/controllers/helpers"
	"github.com/assetra/marketx/engine"
	"github.com/assetra/marketx/models"
	"github.com/assetra/marketx/types"
)

var (
	Router *engine.Router
	Hub    *broadcast.Hub
)

// Setup wires the handlers to the matching router and the event hub. Called
// once at boot before the fiber app starts listening.
func Setup(router *engine.Router, hub *broadcast.Hub) {
	Router = router
	Hub = hub
}

func CreateOrder(c *fiber.Ctx) error {
	errs := new(helpers.Errors)
	payload := new(helpers.CreateOrderParams)

	if err := c.BodyParser(payload); err != nil {
		c.Status(500).JSON(helpers.Errors{
			Errors: []string{"server.method.invalid_message_body"},
		})

		return err
	}

	helpers.Validate(payload, errs)
	if errs.Size() > 0 {
		return c.Status(422).JSON(errs)
	}

	order := payload.BuildOrder()

	result, err := Router.Submit(c.UserContext(), order)
	if err != nil {
		var rejection *engine.Rejection
		if errors.As(err, &rejection) {
			return c.Status(422).JSON(helpers.Errors{
				Errors: []string{rejection.Reason},
			})
		}

		return c.Status(500).JSON(helpers.Errors{
			Errors: []string{"server.internal_error"},
		})
	}

	if err := models.UpsertOrder(result.Order); err != nil {
		return c.Status(500).JSON(helpers.Errors{
			Errors: []string{"server.internal_error"},
		})
	}

	return c.Status(201).JSON(entities.OrderToEntity(result.Order))
}

func CancelOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(422).JSON(helpers.Errors{
			Errors: []string{"market.order.invalid_id"},
		})
	}

	result, err := Router.Cancel(c.UserContext(), id)
	if err != nil {
		return c.Status(500).JSON(helpers.Errors{
			Errors: []string{"server.internal_error"},
		})
	}

	status := result.CancelStatus

	if status == types.CancelOK {
		if err := models.UpsertOrder(result.Order); err != nil {
			return c.Status(500).JSON(helpers.Errors{
				Errors: []string{"server.internal_error"},
			})
		}
	}

	// The book only tracks open orders. When the id is unknown there,
	// the history row tells an already-filled order apart from one that
	// never existed.
	if status == types.CancelNotFound {
		row, err := models.GetOrder(id.String())
		if err == nil {
			switch row.Status {
			case types.StatusFilled:
				status = types.CancelAlreadyFilled
			case types.StatusCancelled:
				status = types.CancelOK
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(500).JSON(helpers.Errors{
				Errors: []string{"server.internal_error"},
			})
		}
	}

	if status == types.CancelNotFound {
		return c.Status(404).JSON(fiber.Map{
			"status": status,
		})
	}

	return c.Status(200).JSON(fiber.Map{
		"status": status,
	})
}

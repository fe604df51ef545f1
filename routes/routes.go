package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/assetra/marketx/controllers"
)

func SetupRouter() *fiber.App {
	app := fiber.New()

	app.Get("/api/v2/public/timestamp", controllers.GetTimestamp)
	app.Get("/api/v2/public/assets/:asset/depth", controllers.GetDepth)
	app.Get("/api/v2/public/assets/:asset/trades", controllers.GetTrades)

	app.Post("/api/v2/market/orders", controllers.CreateOrder)
	app.Delete("/api/v2/market/orders/:id", controllers.CancelOrder)

	app.Use("/api/v2/ws", controllers.UpgradeWS)
	app.Get("/api/v2/ws", websocket.New(controllers.StreamWS))

	return app
}

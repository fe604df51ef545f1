package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/controllers"
	"github.com/assetra/marketx/engine"
	"github.com/assetra/marketx/models"
	"github.com/assetra/marketx/routes"
	"github.com/assetra/marketx/settlement"
	"github.com/assetra/marketx/workers/engines"
)

func main() {
	godotenv.Load()

	if err := config.InitializeConfig(); err != nil {
		fmt.Println(err.Error())
		return
	}

	journalDir := os.Getenv("JOURNAL_DIR")
	if len(journalDir) == 0 {
		journalDir = "data/journal"
	}

	outboxDir := os.Getenv("OUTBOX_DIR")
	if len(outboxDir) == 0 {
		outboxDir = "data/outbox"
	}

	alert := func(assetID, message string) {
		config.Logger.Errorf("[alert] %s: %s", assetID, message)

		payload, err := json.Marshal(map[string]string{
			"asset_id": assetID,
			"message":  message,
		})
		if err != nil {
			return
		}

		config.Kafka.Publish(engines.TopicAlerts, []byte(assetID), payload)
	}

	hub := broadcast.NewHub()

	tradeExecutor := engines.NewTradeExecutorWorker()
	tradeExecutor.Start()

	router := engine.NewRouter(journalDir, hub, alert, tradeExecutor)

	outbox, err := settlement.OpenOutbox(outboxDir)
	if err != nil {
		config.Logger.Fatalf("outbox: %v", err)
	}

	client := settlement.NewHTTPClient(os.Getenv("SETTLEMENT_URL"))
	coordinator := settlement.NewCoordinator(client, outbox, router, alert)
	coordinator.OnTransition(func(assetID string, tr *engine.SettlementTransition) {
		if err := models.UpdateTradeSettlement(tr.TradeID.String(), tr.Status, tr.TxRef); err != nil {
			config.Logger.Errorf("settlement transition %s: %v", tr.TradeID, err)
		}
	})
	router.AddSink(coordinator)

	assets := models.EnabledAssets()
	assetIDs := make([]string, 0, len(assets))
	for _, asset := range assets {
		if err := router.AddAsset(asset.ID); err != nil {
			config.Logger.Fatalf("lane %s: %v", asset.ID, err)
		}
		assetIDs = append(assetIDs, asset.ID)
	}

	if err := coordinator.Start(4); err != nil {
		config.Logger.Fatalf("settlement coordinator: %v", err)
	}

	depthCache := engines.NewDepthCacheWorker(router, assetIDs)
	depthCache.Start()

	controllers.Setup(router, hub)

	app := routes.SetupRouter()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		config.Logger.Info("shutting down")
		app.Shutdown()
	}()

	if err := app.Listen(":3000"); err != nil {
		config.Logger.Errorf("listen: %v", err)
	}

	depthCache.Stop()
	coordinator.Stop()
	tradeExecutor.Stop()
	router.Close()
	outbox.Close()
}

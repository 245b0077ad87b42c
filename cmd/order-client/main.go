package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/builder"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

const (
	version      = "dev"
	pollInterval = 250 * time.Millisecond
	waitTimeout  = 2 * time.Minute
)

func main() {
	logger := log.New("order-client", os.Getenv("ENV"), version)
	slog.SetDefault(logger)

	engineURL := os.Getenv("ORCHESTRATOR_URL")
	if engineURL == "" {
		engineURL = builder.DefaultEngineURL
	}

	order := api.OrderInput{
		ProductName: envString("ORDER_PRODUCT", "Widget"),
		Quantity:    int(envFloat("ORDER_QUANTITY", 3)),
		UnitPrice:   envFloat("ORDER_UNIT_PRICE", 10),
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	client := builder.NewClient(engineURL, 30*time.Second)
	started, err := client.StartOrder(ctx, order)
	if err != nil {
		slog.Error("Failed to start order", log.Error(err))
		os.Exit(1)
	}
	slog.Info("Order accepted",
		log.InstanceID(started.InstanceID),
		slog.String("status_query_url", started.StatusQueryURL))

	res, err := client.WaitForTerminal(ctx, started.InstanceID, pollInterval)
	if err != nil {
		slog.Error("Failed waiting for order",
			log.InstanceID(started.InstanceID),
			log.Error(err))
		os.Exit(1)
	}

	slog.Info("Order finished",
		log.InstanceID(res.InstanceID),
		log.Status(res.Status),
		log.Cursor(res.Cursor),
		slog.String("failure_reason", res.FailureReason),
		slog.String("payload", string(res.Payload)))
	if res.Status != api.StatusCompleted {
		os.Exit(1)
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/builder"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

const (
	version     = "dev"
	defaultAddr = ":8081"
	shipPath    = "/ship"
)

var (
	ErrCarrierUnavailable = errors.New("carrier unavailable")
	ErrNothingToShip      = errors.New("order has no product")
)

func main() {
	logger := log.New("shipping-service", os.Getenv("ENV"), version)
	slog.SetDefault(logger)

	addr := os.Getenv("SHIPPING_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	failureRate, _ := strconv.ParseFloat(os.Getenv("SHIPPING_FAILURE_RATE"), 64)

	mux := http.NewServeMux()
	mux.Handle(shipPath, builder.NewStepHandler(newHandler(failureRate)))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Shipping service starting",
		slog.String("addr", addr),
		slog.String("path", shipPath),
		slog.Float64("failure_rate", failureRate))
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("Shipping service stopped", log.Error(err))
		os.Exit(1)
	}
}

func newHandler(failureRate float64) builder.StepHandler {
	return func(
		ctx *builder.StepContext, payload json.RawMessage,
	) (json.RawMessage, error) {
		res := gjson.GetManyBytes(payload, "orderNumber", "productName")
		orderNumber, product := res[0].Int(), res[1].String()
		if product == "" {
			return nil, ErrNothingToShip
		}

		// simulate a flaky carrier so the orchestrator's retries show up
		if rand.Float64() < failureRate {
			slog.Warn("Simulating carrier failure (will retry)",
				log.InstanceID(ctx.Metadata.InstanceID),
				slog.Int("attempt", ctx.Metadata.Attempt))
			return nil, builder.Retryable(ErrCarrierUnavailable)
		}

		shipment := uuid.NewString()
		slog.Info("Shipment scheduled",
			log.InstanceID(ctx.Metadata.InstanceID),
			slog.String("idempotency_key", ctx.Metadata.IdempotencyKey),
			slog.Int64("order_number", orderNumber),
			slog.String("product_name", product),
			slog.String("shipment_id", shipment))
		return json.RawMessage(fmt.Sprintf(`{"shipmentId":%q}`, shipment)), nil
	}
}

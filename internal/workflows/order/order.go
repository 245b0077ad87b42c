package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/client"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Payload is the accumulator carried between the order steps
	Payload struct {
		LastUpdate       time.Time `json:"lastUpdate"`
		ProductName      string    `json:"productName"`
		Quantity         int       `json:"quantity"`
		UnitPrice        float64   `json:"unitPrice"`
		OrderNumber      int       `json:"orderNumber"`
		TotalPaid        float64   `json:"totalPaid"`
		IsApproved       bool      `json:"isApproved"`
		IsOrderProcessed bool      `json:"isOrderProcessed"`
		IsOrderSent      bool      `json:"isOrderSent"`
	}

	// Config supplies the optional shipping notification made by SendOrder
	Config struct {
		Shipper     client.Client
		ShippingURL string
	}

	steps struct {
		cfg Config
	}
)

const (
	Type api.WorkflowType = "order"

	StepOrderRequest api.StepName = "OrderRequest"
	StepPayment      api.StepName = "Payment"
	StepApproval     api.StepName = "Approval"
	StepProcessOrder api.StepName = "ProcessOrder"
	StepSendOrder    api.StepName = "SendOrder"

	// InvalidReason is the failure reason of an instance whose order input
	// was rejected
	InvalidReason = "invalid order"

	MinOrderNumber = 1000
	MaxOrderNumber = 9999
)

var (
	ErrMissingProduct   = errors.New("product name is required")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidUnitPrice = errors.New("unit price must be positive")
	ErrNotPaid          = errors.New("total paid must be positive")
)

// New builds the five-step order workflow
func New(cfg Config) (*engine.Workflow, error) {
	s := &steps{cfg: cfg}
	wf := engine.NewWorkflow(Type,
		engine.WithInvalidReason(InvalidReason),
		engine.WithValidator(engine.TypedValidator(Validate)),
		engine.WithInit(engine.TypedInit(NewPayload)),
	)
	for _, st := range []struct {
		name api.StepName
		fn   engine.StepFunc
	}{
		{StepOrderRequest, engine.Typed(s.orderRequest)},
		{StepPayment, engine.Typed(s.payment)},
		{StepApproval, engine.Typed(s.approval)},
		{StepProcessOrder, engine.Typed(s.processOrder)},
		{StepSendOrder, engine.Typed(s.sendOrder)},
	} {
		if err := wf.Register(st.name, st.fn); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

// Validate rejects an order with an empty product name, or a non-positive
// quantity or unit price
func Validate(in api.OrderInput) error {
	switch {
	case in.ProductName == "":
		return ErrMissingProduct
	case in.Quantity <= 0:
		return ErrInvalidQuantity
	case in.UnitPrice <= 0:
		return ErrInvalidUnitPrice
	default:
		return nil
	}
}

// NewPayload seeds the payload from the order input
func NewPayload(in api.OrderInput) Payload {
	return Payload{
		ProductName: in.ProductName,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
	}
}

func (s *steps) orderRequest(
	_ context.Context, call *engine.Call, p Payload,
) (Payload, error) {
	slog.Info("Order request received",
		log.InstanceID(call.InstanceID),
		slog.String("product_name", p.ProductName),
		slog.Int("quantity", p.Quantity),
		slog.Float64("unit_price", p.UnitPrice))
	p.OrderNumber = call.Number(MinOrderNumber, MaxOrderNumber)
	return p, nil
}

func (s *steps) payment(
	_ context.Context, call *engine.Call, p Payload,
) (Payload, error) {
	slog.Info("Payment received",
		log.InstanceID(call.InstanceID),
		slog.Int("order_number", p.OrderNumber))
	p.TotalPaid = float64(p.Quantity) * p.UnitPrice
	return p, nil
}

func (s *steps) approval(
	_ context.Context, call *engine.Call, p Payload,
) (Payload, error) {
	slog.Info("Approval received",
		log.InstanceID(call.InstanceID),
		slog.Int("order_number", p.OrderNumber))
	if p.TotalPaid <= 0 {
		return p, engine.Validation(
			fmt.Errorf("%w: order %d", ErrNotPaid, p.OrderNumber),
		)
	}
	p.IsApproved = true
	return p, nil
}

func (s *steps) processOrder(
	_ context.Context, call *engine.Call, p Payload,
) (Payload, error) {
	slog.Info("Order is being processed",
		log.InstanceID(call.InstanceID),
		slog.Int("order_number", p.OrderNumber))
	p.IsOrderProcessed = true
	p.LastUpdate = call.Now()
	return p, nil
}

func (s *steps) sendOrder(
	ctx context.Context, call *engine.Call, p Payload,
) (Payload, error) {
	slog.Info("Order is being sent",
		log.InstanceID(call.InstanceID),
		slog.Int("order_number", p.OrderNumber))
	if err := s.notifyShipping(ctx, call, p); err != nil {
		return p, err
	}
	p.IsOrderSent = true
	p.LastUpdate = call.Now()
	return p, nil
}

func (s *steps) notifyShipping(
	ctx context.Context, call *engine.Call, p Payload,
) error {
	if s.cfg.Shipper == nil || s.cfg.ShippingURL == "" {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.cfg.Shipper.Invoke(ctx, s.cfg.ShippingURL, call, data)
	return err
}

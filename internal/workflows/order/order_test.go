package order_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/assert"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/client"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/config"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/memory"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows/order"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/builder"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newEngine(t *testing.T, cfg order.Config) *engine.Engine {
	t.Helper()
	wf, err := order.New(cfg)
	require.NoError(t, err)
	cat, err := engine.NewCatalog(wf)
	require.NoError(t, err)

	ecfg := config.NewDefaultConfig()
	ecfg.Workers = 2
	ecfg.StepTimeout = api.Second
	e := engine.New(ecfg, engine.Dependencies{
		Store:   memory.New(),
		Catalog: cat,
		Clock:   func() time.Time { return fixedNow },
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func startOrder(
	t *testing.T, e *engine.Engine, in api.OrderInput,
) api.InstanceID {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	id, err := e.StartInstance(context.Background(), order.Type, data)
	require.NoError(t, err)
	return id
}

func decodePayload(t *testing.T, data json.RawMessage) order.Payload {
	t.Helper()
	var p order.Payload
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func TestSteps(t *testing.T) {
	wf, err := order.New(order.Config{})
	require.NoError(t, err)
	as := assert.New(t)
	as.Equal(order.Type, wf.Type())
	as.Equal(order.InvalidReason, wf.InvalidReason())
	as.Equal([]api.StepName{
		order.StepOrderRequest,
		order.StepPayment,
		order.StepApproval,
		order.StepProcessOrder,
		order.StepSendOrder,
	}, wf.StepNames())
}

func TestValidate(t *testing.T) {
	as := assert.New(t)
	as.NoError(order.Validate(api.OrderInput{
		ProductName: "Widget", Quantity: 1, UnitPrice: 1,
	}))
	as.ErrorIs(order.Validate(api.OrderInput{
		Quantity: 1, UnitPrice: 1,
	}), order.ErrMissingProduct)
	as.ErrorIs(order.Validate(api.OrderInput{
		ProductName: "Widget", UnitPrice: 1,
	}), order.ErrInvalidQuantity)
	as.ErrorIs(order.Validate(api.OrderInput{
		ProductName: "Widget", Quantity: 2, UnitPrice: -1,
	}), order.ErrInvalidUnitPrice)
}

func TestCompletes(t *testing.T) {
	as := assert.New(t)
	e := newEngine(t, order.Config{})

	id := startOrder(t, e, api.OrderInput{
		ProductName: "Widget", Quantity: 3, UnitPrice: 10,
	})
	inst := as.WaitForTerminal(e, id)
	as.InstanceStatus(inst, api.StatusCompleted)
	as.Equal(5, inst.Cursor)
	as.Empty(inst.FailureReason)

	p := decodePayload(t, inst.Payload)
	as.Equal("Widget", p.ProductName)
	as.Equal(3, p.Quantity)
	as.Equal(10.0, p.UnitPrice)
	as.Equal(30.0, p.TotalPaid)
	as.GreaterOrEqual(p.OrderNumber, order.MinOrderNumber)
	as.LessOrEqual(p.OrderNumber, order.MaxOrderNumber)
	as.True(p.IsApproved)
	as.True(p.IsOrderProcessed)
	as.True(p.IsOrderSent)
	as.True(fixedNow.Equal(p.LastUpdate))
}

func TestTotalPaid(t *testing.T) {
	e := newEngine(t, order.Config{})

	for _, tc := range []struct {
		name     string
		quantity int
		price    float64
		total    float64
	}{
		{"fractional", 3, 19.99, 59.97},
		{"tenth", 10, 0.1, 1},
		{"cent", 7, 0.01, 0.07},
		{"large_quantity", 1_000_000, 12.75, 12_750_000},
		{"large_both", 250_000, 4_999.95, 1_249_987_500},
	} {
		t.Run(tc.name, func(t *testing.T) {
			as := assert.New(t)
			id := startOrder(t, e, api.OrderInput{
				ProductName: "Widget",
				Quantity:    tc.quantity,
				UnitPrice:   tc.price,
			})
			inst := as.WaitForTerminal(e, id)
			as.InstanceStatus(inst, api.StatusCompleted)

			p := decodePayload(t, inst.Payload)
			as.Equal(float64(tc.quantity)*tc.price, p.TotalPaid)
			as.InDelta(tc.total, p.TotalPaid, 1e-6)
		})
	}
}

func TestOrderNumberStable(t *testing.T) {
	as := assert.New(t)
	wf, err := order.New(order.Config{})
	require.NoError(t, err)
	exec := engine.NewExecutor(time.Second)
	inst := &api.Instance{ID: "order-stable", Workflow: order.Type}
	step := wf.Steps()[0]
	in := json.RawMessage(`{"productName":"Widget","quantity":1,"unitPrice":2}`)

	first, err := exec.Execute(context.Background(), inst, step, 1, in)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), inst, step, 2, in)
	require.NoError(t, err)
	as.Equal(
		decodePayload(t, first).OrderNumber,
		decodePayload(t, second).OrderNumber,
	)
}

func TestInvalidOrder(t *testing.T) {
	e := newEngine(t, order.Config{})

	for _, in := range []api.OrderInput{
		{ProductName: "", Quantity: 1, UnitPrice: 1},
		{ProductName: "Widget", Quantity: 0, UnitPrice: 1},
		{ProductName: "Widget", Quantity: 1, UnitPrice: 0},
		{ProductName: "Widget", Quantity: -3, UnitPrice: 1},
		{ProductName: "Widget", Quantity: 1, UnitPrice: -0.5},
	} {
		as := assert.New(t)
		id := startOrder(t, e, in)
		inst := as.WaitForTerminal(e, id)
		as.InstanceStatus(inst, api.StatusFailed)
		as.Equal(order.InvalidReason, inst.FailureReason)
		as.Equal(0, inst.Cursor)
	}
}

func TestShippingNotification(t *testing.T) {
	as := assert.New(t)
	var received atomic.Int32
	var sent atomic.Value
	server := httptest.NewServer(builder.NewStepHandler(
		func(
			ctx *builder.StepContext, payload json.RawMessage,
		) (json.RawMessage, error) {
			received.Add(1)
			sent.Store(ctx.Metadata)
			return nil, nil
		},
	))
	defer server.Close()

	e := newEngine(t, order.Config{
		Shipper:     client.NewHTTPClient(time.Second),
		ShippingURL: server.URL,
	})
	id := startOrder(t, e, api.OrderInput{
		ProductName: "Gadget", Quantity: 2, UnitPrice: 5,
	})
	inst := as.WaitForTerminal(e, id)
	as.InstanceStatus(inst, api.StatusCompleted)
	as.Equal(int32(1), received.Load())

	md, ok := sent.Load().(api.StepMetadata)
	if as.True(ok) {
		as.Equal(id, md.InstanceID)
		as.Equal(order.StepSendOrder, md.Step)
		as.Equal(4, md.Index)
	}
	as.True(decodePayload(t, inst.Payload).IsOrderSent)
}

func TestShippingRejected(t *testing.T) {
	as := assert.New(t)
	server := httptest.NewServer(builder.NewStepHandler(
		func(*builder.StepContext, json.RawMessage) (json.RawMessage, error) {
			return nil, order.ErrNotPaid
		},
	))
	defer server.Close()

	e := newEngine(t, order.Config{
		Shipper:     client.NewHTTPClient(time.Second),
		ShippingURL: server.URL,
	})
	id := startOrder(t, e, api.OrderInput{
		ProductName: "Gadget", Quantity: 2, UnitPrice: 5,
	})
	inst := as.WaitForTerminal(e, id)
	as.InstanceStatus(inst, api.StatusFailed)
	as.Equal(4, inst.Cursor)
	as.Contains(inst.FailureReason, string(order.StepSendOrder))

	p := decodePayload(t, inst.Payload)
	as.True(p.IsOrderProcessed)
	as.False(p.IsOrderSent)
}

package workflows

import (
	"github.com/lgmbx/DataProcessingOrchestrator/internal/client"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/script"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows/order"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows/text"
)

// Config carries what the built-in workflows need from the process
type Config struct {
	Shipper     client.Client
	ShippingURL string
}

// NewCatalog builds the order and text workflows into a frozen catalog
func NewCatalog(cfg Config) (*engine.Catalog, error) {
	orders, err := order.New(order.Config{
		Shipper:     cfg.Shipper,
		ShippingURL: cfg.ShippingURL,
	})
	if err != nil {
		return nil, err
	}
	texts, err := text.New(script.NewRegistry())
	if err != nil {
		return nil, err
	}
	return engine.NewCatalog(orders, texts)
}

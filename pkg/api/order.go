package api

type (
	// OrderInput is the immutable request that starts an order workflow
	OrderInput struct {
		ProductName string  `json:"productName"`
		Quantity    int     `json:"quantity"`
		UnitPrice   float64 `json:"unitPrice"`
	}

	// TextInput is the request that starts a text processing workflow
	TextInput struct {
		Text string `json:"text"`
	}
)

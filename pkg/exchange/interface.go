package exchange

import (
	"context"
	"time"
)

// Broker is the caller-facing surface of an authenticated exchange session.
type Broker interface {
	// Order lifecycle.
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByClientID(ctx context.Context, clientID int32) (*Order, error)
	GetOrders(ctx context.Context, statuses ...string) ([]Order, error)
	CancelOrder(ctx context.Context, id string) (*Order, error)
	ReplaceOrder(ctx context.Context, id string, req ReplaceRequest) (*Order, error)
	ClosePosition(ctx context.Context, id string, req CloseRequest) (*ClosedTrade, error)

	// Account and reference data.
	GetAccounts(ctx context.Context) ([]Account, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	GetFills(ctx context.Context, orderID string) ([]Fill, error)
	GetProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)

	// Market data.
	GetTicker(ctx context.Context, productID string) (*Ticker, error)
	GetTime(ctx context.Context) (*ServerTime, error)
	GetCandles(ctx context.Context, productID string, start, end time.Time, granularity time.Duration, n int) ([]Candle, error)
}

// OrderRequest describes a new order. Price zero means market.
type OrderRequest struct {
	ProductID   string
	Side        Side
	Size        float64
	Price       float64
	StopPrice   float64
	TimeInForce TimeInForce
	PostOnly    bool
}

// ReplaceRequest describes the order that supersedes a working one.
// Zero fields inherit from the replaced order; Size zero means the residual.
type ReplaceRequest struct {
	Size        float64
	Price       float64
	TimeInForce TimeInForce
}

// CloseRequest closes all or part of a filled position. Size zero closes
// everything the opening order filled. Price zero closes at market.
type CloseRequest struct {
	Size        float64
	Price       float64
	TimeInForce TimeInForce
}

package exchange

import (
	"strings"
	"time"
)

// Core domain types shared by the Coinbase Pro client, the order id generator
// and the closed-trade ledger. Quantities are float64 on the Go side and are
// formatted against product increments only when sent upstream.

// Credentials hold the API key triple issued by the exchange.
// Secret is the base64 encoded signing key as shown in the exchange UI.
type Credentials struct {
	Key        string `json:"key" yaml:"key"`
	Passphrase string `json:"passphrase" yaml:"passphrase"`
	Secret     string `json:"-" yaml:"secret"`
}

// Side represents order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the upstream order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce controls how long an order rests on the book.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceGTT TimeInForce = "GTT"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	// TimeInForceDay is sent upstream as GTT with cancel_after=day.
	TimeInForceDay TimeInForce = "DAY"
	// TimeInForceOPG and TimeInForceCLS exist on the caller side only and are
	// rejected before submission.
	TimeInForceOPG TimeInForce = "OPG"
	TimeInForceCLS TimeInForce = "CLS"
)

// Immediate reports whether the order must fill at once or be cancelled.
func (t TimeInForce) Immediate() bool {
	return t == TimeInForceIOC || t == TimeInForceFOK
}

// OrderState is the lifecycle state derived from the upstream status string
// and the fill fields.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateSubmitted       OrderState = "submitted"
	OrderStatePending         OrderState = "pending"
	OrderStateOpen            OrderState = "open"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateCanceled        OrderState = "canceled"
	OrderStateExpired         OrderState = "expired"
	OrderStatePendingCancel   OrderState = "pending_cancel"
	OrderStateReplaced        OrderState = "replaced"
	OrderStateRejected        OrderState = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateExpired, OrderStateReplaced, OrderStateRejected:
		return true
	}
	return false
}

// Order tracks one order placed through the client.
type Order struct {
	ID            string      `json:"id"`
	ClientID      int32       `json:"client_id"`
	ClientOID     string      `json:"client_oid,omitempty"`
	ProductID     string      `json:"product_id"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	TimeInForce   TimeInForce `json:"time_in_force,omitempty"`
	Price         float64     `json:"price,omitempty"`
	StopPrice     float64     `json:"stop_price,omitempty"`
	Size          float64     `json:"size"`
	FilledSize    float64     `json:"filled_size"`
	ExecutedValue float64     `json:"executed_value"`
	FillFees      float64     `json:"fill_fees"`
	Status        string      `json:"status"`
	DoneReason    string      `json:"done_reason,omitempty"`
	PostOnly      bool        `json:"post_only"`
	Settled       bool        `json:"settled"`
	STP           string      `json:"stp,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	DoneAt        time.Time   `json:"done_at,omitempty"`

	// ClosingOrderID is the latest closing leg. ClosedSize is the quantity
	// filled or still working on all closing legs.
	ClosingOrderID string  `json:"closing_order_id,omitempty"`
	ClosedSize     float64 `json:"closed_size,omitempty"`
	Replaces       string  `json:"replaces,omitempty"`
	ReplacedBy     string  `json:"replaced_by,omitempty"`
}

// FilledPrice is the average execution price. It is zero until something fills.
func (o *Order) FilledPrice() float64 {
	if o == nil || o.FilledSize == 0 {
		return 0
	}
	return o.ExecutedValue / o.FilledSize
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	if o == nil {
		return 0
	}
	rest := o.Size - o.FilledSize
	if rest < 0 {
		return 0
	}
	return rest
}

// State derives the lifecycle state from the upstream fields.
func (o *Order) State() OrderState {
	if o == nil {
		return OrderStateCreated
	}
	if o.ReplacedBy != "" {
		return OrderStateReplaced
	}
	status := strings.ToLower(o.Status)
	switch status {
	case "":
		if o.ID == "" {
			return OrderStateCreated
		}
		return OrderStateSubmitted
	case "pending", "received":
		return OrderStatePending
	case "open", "active":
		if o.FilledSize > 0 {
			return OrderStatePartiallyFilled
		}
		return OrderStateOpen
	case "done", "settled":
		switch strings.ToLower(o.DoneReason) {
		case "canceled", "cancelled":
			if o.FilledSize > 0 && o.FilledSize >= o.Size {
				return OrderStateFilled
			}
			return OrderStateCanceled
		case "expired":
			return OrderStateExpired
		case "rejected":
			return OrderStateRejected
		}
		return OrderStateFilled
	case "canceled", "cancelled":
		return OrderStateCanceled
	case "expired":
		return OrderStateExpired
	case "rejected":
		return OrderStateRejected
	case "pending_cancel":
		return OrderStatePendingCancel
	}
	return OrderStateSubmitted
}

// IsTerminal is shorthand for State().Terminal().
func (o *Order) IsTerminal() bool {
	return o.State().Terminal()
}

// Product is the static description of a tradable pair.
type Product struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name"`
	BaseCurrency    string  `json:"base_currency"`
	QuoteCurrency   string  `json:"quote_currency"`
	BaseIncrement   float64 `json:"base_increment"`
	QuoteIncrement  float64 `json:"quote_increment"`
	BaseMinSize     float64 `json:"base_min_size"`
	BaseMaxSize     float64 `json:"base_max_size"`
	MinMarketFunds  float64 `json:"min_market_funds"`
	MaxMarketFunds  float64 `json:"max_market_funds"`
	Status          string  `json:"status"`
	StatusMessage   string  `json:"status_message,omitempty"`
	CancelOnly      bool    `json:"cancel_only"`
	LimitOnly       bool    `json:"limit_only"`
	PostOnly        bool    `json:"post_only"`
	TradingDisabled bool    `json:"trading_disabled"`
}

// Account is a per-currency balance.
type Account struct {
	ID        string  `json:"id"`
	Currency  string  `json:"currency"`
	Balance   float64 `json:"balance"`
	Available float64 `json:"available"`
	Hold      float64 `json:"hold"`
	ProfileID string  `json:"profile_id,omitempty"`
}

// Ticker is the latest trade and top of book snapshot.
type Ticker struct {
	TradeID int64     `json:"trade_id"`
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	Bid     float64   `json:"bid"`
	Ask     float64   `json:"ask"`
	Volume  float64   `json:"volume"`
	Time    time.Time `json:"time"`
}

// ServerTime is the exchange clock. Epoch is in milliseconds.
type ServerTime struct {
	ISO   string `json:"iso"`
	Epoch int64  `json:"epoch"`
}

// Time returns Epoch as a time.Time.
func (t ServerTime) Time() time.Time {
	return time.UnixMilli(t.Epoch)
}

// Candle is one OHLCV bar. Time is the bar open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Low    float64   `json:"low"`
	High   float64   `json:"high"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Fill is a single execution against an order.
type Fill struct {
	TradeID   int64     `json:"trade_id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
	Side      Side      `json:"side"`
	Liquidity string    `json:"liquidity"`
	Settled   bool      `json:"settled"`
	CreatedAt time.Time `json:"created_at"`
}

// Position is the holding of one base currency.
type Position struct {
	Currency  string  `json:"currency"`
	Size      float64 `json:"size"`
	Available float64 `json:"available"`
	Hold      float64 `json:"hold"`
}

// ClosedTrade summarises an opening order and the order that closed it.
type ClosedTrade struct {
	OpenOrderID   string    `json:"open_order_id"`
	CloseOrderID  string    `json:"close_order_id"`
	OpenClientID  int32     `json:"open_client_id"`
	CloseClientID int32     `json:"close_client_id"`
	ProductID     string    `json:"product_id"`
	Side          Side      `json:"side"`
	Size          float64   `json:"size"`
	OpenPrice     float64   `json:"open_price"`
	ClosePrice    float64   `json:"close_price"`
	Fees          float64   `json:"fees"`
	Profit        float64   `json:"profit"`
	ClosedAt      time.Time `json:"closed_at"`
	Partial       bool      `json:"partial"`
}

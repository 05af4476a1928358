package coinbase

import "gdax-broker/pkg/exchange"

// The order cache holds the client's view of every order it has seen. Callers
// only ever receive copies.

// remember merges fresh upstream state into the cache and returns a copy.
// Local links and fields the upstream response omitted survive the merge.
func (c *Client) remember(fresh *exchange.Order) *exchange.Order {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	stored := *fresh
	if prev, ok := c.orders[fresh.ID]; ok {
		keepLocal(&stored, prev)
	}
	c.orders[stored.ID] = &stored
	out := stored
	return &out
}

func keepLocal(dst, prev *exchange.Order) {
	if dst.ClientID == 0 {
		dst.ClientID = prev.ClientID
	}
	if dst.ClientOID == "" {
		dst.ClientOID = prev.ClientOID
	}
	if dst.ProductID == "" {
		dst.ProductID = prev.ProductID
	}
	if dst.Side == "" {
		dst.Side = prev.Side
	}
	if dst.Type == "" {
		dst.Type = prev.Type
	}
	if dst.TimeInForce == "" {
		dst.TimeInForce = prev.TimeInForce
	}
	if dst.Size == 0 {
		dst.Size = prev.Size
	}
	if dst.Price == 0 {
		dst.Price = prev.Price
	}
	if dst.StopPrice == 0 {
		dst.StopPrice = prev.StopPrice
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = prev.CreatedAt
	}
	if dst.ClosingOrderID == "" {
		dst.ClosingOrderID = prev.ClosingOrderID
	}
	if dst.ClosedSize == 0 {
		dst.ClosedSize = prev.ClosedSize
	}
	if dst.Replaces == "" {
		dst.Replaces = prev.Replaces
	}
	if dst.ReplacedBy == "" {
		dst.ReplacedBy = prev.ReplacedBy
	}
}

func (c *Client) cachedOrder(id string) (*exchange.Order, bool) {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, false
	}
	out := *o
	return &out, true
}

// link applies fn to the cached order and returns a copy of the result.
func (c *Client) link(id string, fn func(o *exchange.Order)) *exchange.Order {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		o = &exchange.Order{ID: id}
		c.orders[id] = o
	}
	fn(o)
	out := *o
	return &out
}

// markCanceled records an order the exchange no longer knows about. Unfilled
// cancelled orders are purged upstream, so a not-found answer means cancelled.
func (c *Client) markCanceled(id string) *exchange.Order {
	return c.link(id, func(o *exchange.Order) {
		o.Status = "done"
		o.DoneReason = "canceled"
	})
}

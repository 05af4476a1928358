package coinbase

import (
	"context"
	"fmt"
	"math"

	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/pkg/exchange"
)

const sizeEpsilon = 1e-12

// ReplaceOrder emulates an amend: the working order is cancelled and a new
// order for the residual size is submitted. Zero request fields inherit from
// the replaced order.
func (c *Client) ReplaceOrder(ctx context.Context, id string, req exchange.ReplaceRequest) (*exchange.Order, error) {
	old, err := c.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.IsTerminal() {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("order %s is %s and cannot be replaced", id, old.State()))
	}
	cancelled, err := c.cancel(ctx, old).Unwrap()
	if err != nil {
		return nil, err
	}
	if cancelled.State() == exchange.OrderStateFilled {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("order %s filled before it could be replaced", id))
	}

	size := req.Size
	if size <= 0 {
		size = cancelled.Remaining()
	}
	if size <= 0 {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("order %s has no residual size to replace", id))
	}
	price := req.Price
	if price == 0 {
		price = cancelled.Price
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = cancelled.TimeInForce
	}

	next, err := c.SubmitOrder(ctx, exchange.OrderRequest{
		ProductID:   cancelled.ProductID,
		Side:        cancelled.Side,
		Size:        size,
		Price:       price,
		StopPrice:   cancelled.StopPrice,
		TimeInForce: tif,
		PostOnly:    cancelled.PostOnly,
	})
	if err != nil {
		return nil, err
	}
	c.link(cancelled.ID, func(o *exchange.Order) { o.ReplacedBy = next.ID })
	next = c.link(next.ID, func(o *exchange.Order) { o.Replaces = cancelled.ID })
	logx.WithContext(ctx).Infof("gdax: order %s replaced by %s size=%g price=%g", cancelled.ID, next.ID, size, price)
	return next, nil
}

// ClosePosition offsets a filled opening order with an opposite-side order
// and reports the realised result. A position may be closed in several
// steps; each close is capped at the quantity not yet closed. An opening
// order that never filled is withdrawn instead: cancelled in full, or shrunk
// by replacement when only part of it is closed.
func (c *Client) ClosePosition(ctx context.Context, id string, req exchange.CloseRequest) (*exchange.ClosedTrade, error) {
	open, err := c.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if open.FilledSize == 0 {
		if open.IsTerminal() {
			return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("order %s never filled, nothing to close", id))
		}
		return c.withdraw(ctx, open, req)
	}
	if !open.IsTerminal() {
		// Cancel the unfilled remainder so the position stops growing.
		if open, err = c.cancel(ctx, open).Unwrap(); err != nil {
			return nil, err
		}
	}
	remaining := open.FilledSize - open.ClosedSize
	if remaining <= sizeEpsilon {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("order %s is already closed by %s", id, open.ClosingOrderID))
	}

	size := req.Size
	if size <= 0 || size > remaining {
		size = remaining
	}
	closing, err := c.SubmitOrder(ctx, exchange.OrderRequest{
		ProductID:   open.ProductID,
		Side:        open.Side.Opposite(),
		Size:        size,
		Price:       req.Price,
		TimeInForce: req.TimeInForce,
	})
	if err != nil {
		return nil, err
	}
	committed := closing.FilledSize
	if !closing.IsTerminal() {
		// A working close may still fill up to its full size.
		committed = math.Max(closing.Size, closing.FilledSize)
	}
	open = c.link(open.ID, func(o *exchange.Order) {
		o.ClosingOrderID = closing.ID
		o.ClosedSize += committed
	})

	trade := closedTrade(open, closing, remaining)
	trade.ClosedAt = c.clock.Now()
	if closing.IsTerminal() {
		c.retire(ctx, closing.ClientID)
	}
	if open.FilledSize-open.ClosedSize <= sizeEpsilon {
		c.retire(ctx, open.ClientID)
	}
	if trade.Size == 0 {
		// Resting close order: linked, but nothing realised yet.
		return &trade, nil
	}
	if c.ledger != nil {
		if err := c.ledger.Record(ctx, trade); err != nil {
			logx.WithContext(ctx).Errorf("gdax: ledger record %s/%s: %v", trade.OpenOrderID, trade.CloseOrderID, err)
		}
	}
	logx.WithContext(ctx).Infof("gdax: closed %s %s size=%g open=%g close=%g profit=%g fees=%g partial=%t",
		trade.Side, trade.ProductID, trade.Size, trade.OpenPrice, trade.ClosePrice, trade.Profit, trade.Fees, trade.Partial)
	return &trade, nil
}

func (c *Client) withdraw(ctx context.Context, open *exchange.Order, req exchange.CloseRequest) (*exchange.ClosedTrade, error) {
	trade := exchange.ClosedTrade{
		OpenOrderID:  open.ID,
		OpenClientID: open.ClientID,
		ProductID:    open.ProductID,
		Side:         open.Side,
	}
	remaining := open.Remaining()
	if req.Size > 0 && req.Size < remaining-sizeEpsilon {
		if _, err := c.ReplaceOrder(ctx, open.ID, exchange.ReplaceRequest{Size: remaining - req.Size}); err != nil {
			return nil, err
		}
		trade.Partial = true
		trade.ClosedAt = c.clock.Now()
		return &trade, nil
	}

	cancelled, err := c.cancel(ctx, open).Unwrap()
	if err != nil {
		return nil, err
	}
	if cancelled.FilledSize > 0 {
		// The order filled while being withdrawn; close the fill instead.
		return c.ClosePosition(ctx, cancelled.ID, req)
	}
	trade.ClosedAt = c.clock.Now()
	return &trade, nil
}

// closedTrade computes the realised result of closing part or all of the
// remaining open quantity. The opening value and fees are pro-rated to the
// closed size; profit is gross of fees.
func closedTrade(open, closing *exchange.Order, remaining float64) exchange.ClosedTrade {
	closed := closing.FilledSize
	trade := exchange.ClosedTrade{
		OpenOrderID:   open.ID,
		CloseOrderID:  closing.ID,
		OpenClientID:  open.ClientID,
		CloseClientID: closing.ClientID,
		ProductID:     open.ProductID,
		Side:          open.Side,
		Size:          closed,
		OpenPrice:     open.FilledPrice(),
		ClosePrice:    closing.FilledPrice(),
	}
	if closed == 0 || open.FilledSize == 0 || remaining <= 0 {
		trade.Partial = true
		return trade
	}
	share := math.Min(closed, remaining) / open.FilledSize
	trade.Profit = closing.ExecutedValue - open.ExecutedValue*share
	if open.Side == exchange.SideSell {
		trade.Profit = -trade.Profit
	}
	trade.Fees = open.FillFees*share + closing.FillFees
	trade.Partial = closed < remaining-sizeEpsilon
	return trade
}

func (c *Client) retire(ctx context.Context, clientID int32) {
	if c.ids == nil || clientID == 0 {
		return
	}
	if err := c.ids.Tombstone(ctx, clientID); err != nil {
		logx.WithContext(ctx).Errorf("gdax: tombstone client id %d: %v", clientID, err)
	}
}

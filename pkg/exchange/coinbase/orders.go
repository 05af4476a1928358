package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/pkg/exchange"
)

// client_oid values are name-based UUIDs of the minted id, so the id alone is
// enough to find an order again after a restart.
var clientOIDSpace = uuid.MustParse("6f0d3c52-9a59-4b8e-b7a3-2c1d5e8f4a10")

func clientOID(id int32) string {
	return uuid.NewSHA1(clientOIDSpace, []byte(strconv.FormatInt(int64(id), 10))).String()
}

// SubmitOrder places an order and, for pending or immediate orders, waits
// until it settles. An order that has not settled within the fill timeout is
// cancelled and a timeout error is returned.
func (c *Client) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	return c.submit(ctx, req).Unwrap()
}

func (c *Client) submit(ctx context.Context, req exchange.OrderRequest) exchange.Result[*exchange.Order] {
	if c.ids == nil {
		return exchange.Fail[*exchange.Order](exchange.APIError(exchange.CodeAPIMessage, "no client order id source configured"))
	}
	product, err := c.GetProduct(ctx, req.ProductID)
	if err != nil {
		return exchange.Fail[*exchange.Order](exchange.AsError(err))
	}
	if failure := validateOrder(product, req); failure != nil {
		return exchange.Fail[*exchange.Order](failure)
	}

	var placed *exchange.Order
	for attempt := 1; ; attempt++ {
		id, err := c.ids.NextID(ctx)
		if err != nil {
			return exchange.Fail[*exchange.Order](exchange.APIError(exchange.CodeAPIMessage, "mint client order id: "+err.Error()))
		}
		oid := clientOID(id)
		body, err := buildOrderBody(product, req, oid, c.stp)
		if err != nil {
			return exchange.Fail[*exchange.Order](exchange.APIError(exchange.CodeAPIMessage, "build order body: "+err.Error()))
		}
		res := doRequest(ctx, c, call{class: Private, method: http.MethodPost, path: "/orders", body: body}, decodeOrder)
		if res.OK() {
			placed = res.Value()
			placed.ClientID, placed.ClientOID = id, oid
			break
		}
		if attempt == 1 && isDuplicateClientOID(res.Err()) {
			logx.WithContext(ctx).Infof("gdax: client_oid %s already used, resubmitting with a fresh id", oid)
			continue
		}
		return exchange.Fail[*exchange.Order](res.Err())
	}
	if placed.ID == "" {
		return exchange.Fail[*exchange.Order](exchange.APIError(exchange.CodeAPIMessage, "order response carried no id"))
	}
	fillFromRequest(placed, req)

	if err := c.ids.Record(ctx, placed.ClientID, placed.ID); err != nil {
		logx.WithContext(ctx).Errorf("gdax: record client id %d -> %s: %v", placed.ClientID, placed.ID, err)
	}
	order := c.remember(placed)
	logx.WithContext(ctx).Infof("gdax: submitted %s %s size=%g price=%g tif=%s id=%s client=%d status=%s",
		order.Side, order.ProductID, order.Size, order.Price, req.TimeInForce, order.ID, order.ClientID, order.Status)
	return c.settle(ctx, order, req.TimeInForce)
}

func fillFromRequest(o *exchange.Order, req exchange.OrderRequest) {
	if o.ProductID == "" {
		o.ProductID = req.ProductID
	}
	if o.Side == "" {
		o.Side = req.Side
	}
	if o.Size == 0 {
		o.Size = req.Size
	}
	if o.Price == 0 {
		o.Price = req.Price
	}
	if o.StopPrice == 0 {
		o.StopPrice = req.StopPrice
	}
	if o.Type == "" {
		o.Type = exchange.OrderTypeMarket
		if req.Price > 0 {
			o.Type = exchange.OrderTypeLimit
		}
	}
	if o.TimeInForce == "" {
		o.TimeInForce = req.TimeInForce
	}
}

// settle polls until the order no longer needs waiting for.
func (c *Client) settle(ctx context.Context, order *exchange.Order, tif exchange.TimeInForce) exchange.Result[*exchange.Order] {
	immediate := tif.Immediate()
	if !mustWait(order, immediate) {
		c.retireIfDead(ctx, order)
		return exchange.Ok(order)
	}
	deadline := c.clock.Now().Add(c.fillTimeout)
	for {
		if failure := c.pause(ctx, "fill wait for order "+order.ID); failure != nil {
			if immediate {
				c.abandon(ctx, order)
			}
			return exchange.Fail[*exchange.Order](failure)
		}
		res := c.fetchOrder(ctx, order.ID)
		switch {
		case res.OK():
			order = c.remember(res.Value())
			if !mustWait(order, immediate) {
				c.retireIfDead(ctx, order)
				return exchange.Ok(order)
			}
		case isGone(res.Err()):
			order = c.markCanceled(order.ID)
			c.retireIfDead(ctx, order)
			return exchange.Ok(order)
		default:
			logx.WithContext(ctx).Errorf("gdax: poll order %s: %v", order.ID, res.Err())
		}
		if !c.clock.Now().Before(deadline) {
			return c.expire(ctx, order)
		}
	}
}

func mustWait(o *exchange.Order, immediate bool) bool {
	switch st := o.State(); {
	case st.Terminal(), st == exchange.OrderStatePartiallyFilled:
		return false
	case st == exchange.OrderStatePending, st == exchange.OrderStateSubmitted:
		return true
	}
	return immediate && o.FilledSize == 0
}

// expire cancels an order that outlived the fill timeout. Anything filled in
// the meantime is returned as a fill.
func (c *Client) expire(ctx context.Context, order *exchange.Order) exchange.Result[*exchange.Order] {
	res := c.cancel(ctx, order)
	if res.OK() && res.Value().FilledSize > 0 {
		return res
	}
	if !res.OK() {
		logx.WithContext(ctx).Errorf("gdax: cancel after fill timeout for %s: %v", order.ID, res.Err())
	}
	return exchange.Fail[*exchange.Order](exchange.TimeoutError(
		fmt.Sprintf("order %s not filled within %s, cancel requested", order.ID, c.fillTimeout)))
}

// abandon sends a single cancel for an immediate order the caller stopped
// waiting for. The cancel is not confirmed since that needs further polling.
func (c *Client) abandon(ctx context.Context, order *exchange.Order) {
	ctx = context.WithoutCancel(ctx)
	path := "/orders/" + url.PathEscape(order.ID)
	res := doRequest(ctx, c, call{class: Private, method: http.MethodDelete, path: path, detached: true}, decodeCancelAck)
	switch {
	case res.OK():
		if ack := res.Value(); ack.order != nil {
			c.retireIfDead(ctx, c.remember(ack.order))
		}
	case isGone(res.Err()):
		c.retireIfDead(ctx, c.markCanceled(order.ID))
	case isAlreadyDone(res.Err()):
	default:
		logx.WithContext(ctx).Errorf("gdax: cancel abandoned order %s: %v", order.ID, res.Err())
	}
}

// GetOrder returns cached terminal orders without a request and refreshes
// everything else.
func (c *Client) GetOrder(ctx context.Context, id string) (*exchange.Order, error) {
	if cached, ok := c.cachedOrder(id); ok && cached.IsTerminal() {
		return cached, nil
	}
	res := c.fetchOrder(ctx, id)
	if !res.OK() {
		return nil, res.Err()
	}
	return c.remember(res.Value()), nil
}

func (c *Client) fetchOrder(ctx context.Context, id string) exchange.Result[*exchange.Order] {
	path := "/orders/" + url.PathEscape(id)
	return doRequest(ctx, c, call{class: Private, method: http.MethodGet, path: path}, decodeOrder)
}

// GetOrderByClientID resolves a locally minted id, through the id log when
// possible and through the client_oid lookup otherwise.
func (c *Client) GetOrderByClientID(ctx context.Context, clientID int32) (*exchange.Order, error) {
	if c.ids != nil {
		if exchangeID, ok := c.ids.Lookup(ctx, clientID); ok {
			o, err := c.GetOrder(ctx, exchangeID)
			if err == nil {
				return c.link(o.ID, func(o *exchange.Order) {
					o.ClientID = clientID
					o.ClientOID = clientOID(clientID)
				}), nil
			}
			if !isGone(exchange.AsError(err)) {
				return nil, err
			}
		}
	}

	path := "/orders/client:" + clientOID(clientID)
	o, err := doRequest(ctx, c, call{class: Private, method: http.MethodGet, path: path}, decodeOrder).Unwrap()
	if err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("no order for client id %d", clientID))
	}
	o.ClientID, o.ClientOID = clientID, clientOID(clientID)
	if c.ids != nil {
		if err := c.ids.Record(ctx, clientID, o.ID); err != nil {
			logx.WithContext(ctx).Errorf("gdax: record client id %d -> %s: %v", clientID, o.ID, err)
		}
	}
	return c.remember(o), nil
}

// GetOrders lists orders with the given statuses; no status means all.
func (c *Client) GetOrders(ctx context.Context, statuses ...string) ([]exchange.Order, error) {
	if len(statuses) == 0 {
		statuses = []string{"all"}
	}
	q := url.Values{}
	for _, s := range statuses {
		q.Add("status", s)
	}
	list, err := doRequest(ctx, c, call{class: Private, method: http.MethodGet, path: "/orders?" + q.Encode()}, decodeList(decodeOrder)).Unwrap()
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Order, 0, len(list))
	for _, o := range list {
		if o.ID == "" {
			continue
		}
		out = append(out, *c.remember(o))
	}
	return out, nil
}

// CancelOrder cancels a working order. A fill that wins the race against the
// cancel is returned as the filled order, not as an error.
func (c *Client) CancelOrder(ctx context.Context, id string) (*exchange.Order, error) {
	order, err := c.GetOrder(ctx, id)
	if err != nil {
		if isGone(exchange.AsError(err)) {
			return c.markCanceled(id), nil
		}
		return nil, err
	}
	if order.IsTerminal() {
		return order, nil
	}
	return c.cancel(ctx, order).Unwrap()
}

func (c *Client) cancel(ctx context.Context, order *exchange.Order) exchange.Result[*exchange.Order] {
	path := "/orders/" + url.PathEscape(order.ID)
	res := doRequest(ctx, c, call{class: Private, method: http.MethodDelete, path: path}, decodeCancelAck)
	if res.OK() {
		if ack := res.Value(); ack.order != nil {
			if cur := c.remember(ack.order); cur.IsTerminal() {
				c.retireIfDead(ctx, cur)
				return exchange.Ok(cur)
			}
		}
	} else if !isGone(res.Err()) && !isAlreadyDone(res.Err()) {
		return exchange.Fail[*exchange.Order](res.Err())
	}

	for attempt := 0; attempt < c.cancelAttempts; attempt++ {
		if attempt > 0 {
			if failure := c.pause(ctx, "cancel wait for order "+order.ID); failure != nil {
				return exchange.Fail[*exchange.Order](failure)
			}
		}
		cur := c.fetchOrder(ctx, order.ID)
		if !cur.OK() {
			if isGone(cur.Err()) {
				o := c.markCanceled(order.ID)
				c.retireIfDead(ctx, o)
				return exchange.Ok(o)
			}
			logx.WithContext(ctx).Errorf("gdax: poll cancelled order %s: %v", order.ID, cur.Err())
			continue
		}
		if o := c.remember(cur.Value()); o.IsTerminal() {
			c.retireIfDead(ctx, o)
			return exchange.Ok(o)
		}
	}
	return exchange.Fail[*exchange.Order](exchange.TimeoutError(
		fmt.Sprintf("cancel of order %s not confirmed after %d attempts", order.ID, c.cancelAttempts)))
}

// retireIfDead tombstones the id mapping of an order that ended without
// filling anything; it never opened a position.
func (c *Client) retireIfDead(ctx context.Context, o *exchange.Order) {
	if o.FilledSize > 0 || !o.IsTerminal() {
		return
	}
	c.retire(ctx, o.ClientID)
}

func validateOrder(p *exchange.Product, req exchange.OrderRequest) *exchange.Error {
	reject := func(format string, args ...any) *exchange.Error {
		return exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf(format, args...))
	}
	switch {
	case req.Side != exchange.SideBuy && req.Side != exchange.SideSell:
		return reject("invalid order side %q", req.Side)
	case req.Size <= 0:
		return reject("order size must be positive, got %g", req.Size)
	case req.Price < 0 || req.StopPrice < 0:
		return reject("prices must not be negative")
	case p.TradingDisabled:
		return reject("trading is disabled for %s", p.ID)
	case p.CancelOnly:
		return reject("%s is in cancel-only mode", p.ID)
	case p.LimitOnly && req.Price == 0:
		return reject("%s accepts limit orders only", p.ID)
	case p.BaseMinSize > 0 && req.Size < p.BaseMinSize:
		return reject("size %g is below the minimum %g for %s", req.Size, p.BaseMinSize, p.ID)
	case p.BaseMaxSize > 0 && req.Size > p.BaseMaxSize:
		return reject("size %g is above the maximum %g for %s", req.Size, p.BaseMaxSize, p.ID)
	}
	switch req.TimeInForce {
	case "", exchange.TimeInForceGTC, exchange.TimeInForceGTT, exchange.TimeInForceIOC,
		exchange.TimeInForceFOK, exchange.TimeInForceDay:
	default:
		return reject("time in force %s is not supported", req.TimeInForce)
	}
	return nil
}

type bodyBuilder struct {
	buf []byte
	err error
}

func (b *bodyBuilder) set(path string, value any) {
	if b.err != nil {
		return
	}
	b.buf, b.err = sjson.SetBytes(b.buf, path, value)
}

func buildOrderBody(p *exchange.Product, req exchange.OrderRequest, oid, stp string) ([]byte, error) {
	b := &bodyBuilder{buf: []byte(`{}`)}
	b.set("product_id", p.ID)
	b.set("side", string(req.Side))
	b.set("client_oid", oid)
	if stp != "" {
		b.set("stp", stp)
	}
	if req.Price > 0 {
		b.set("type", string(exchange.OrderTypeLimit))
		b.set("price", formatLimitPrice(req.Price, p.QuoteIncrement, req.Side))
		tif := req.TimeInForce
		switch tif {
		case "":
			tif = exchange.TimeInForceGTC
		case exchange.TimeInForceDay, exchange.TimeInForceGTT:
			tif = exchange.TimeInForceGTT
			b.set("cancel_after", "day")
		}
		b.set("time_in_force", string(tif))
		if !tif.Immediate() {
			b.set("post_only", req.PostOnly)
		}
	} else {
		b.set("type", string(exchange.OrderTypeMarket))
	}
	if req.StopPrice > 0 {
		b.set("stop_price", formatAmount(req.StopPrice, p.QuoteIncrement))
		if req.Side == exchange.SideBuy {
			b.set("stop", "entry")
		} else {
			b.set("stop", "loss")
		}
	}
	b.set("size", formatAmount(req.Size, p.BaseIncrement))
	return b.buf, b.err
}

func isDuplicateClientOID(e *exchange.Error) bool {
	if e == nil || e.Kind != exchange.KindAPI {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "duplicate") || (strings.Contains(msg, "client_oid") && strings.Contains(msg, "exist"))
}

func isGone(e *exchange.Error) bool {
	if e == nil || e.Kind != exchange.KindAPI {
		return false
	}
	msg := strings.ToLower(e.Message)
	return e.Code == http.StatusNotFound || strings.Contains(msg, "notfound") || strings.Contains(msg, "not found")
}

func isAlreadyDone(e *exchange.Error) bool {
	return e != nil && e.Kind == exchange.KindAPI && strings.Contains(strings.ToLower(e.Message), "already done")
}

package coinbase

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gdax-broker/pkg/exchange"
)

// parseBody applies the error envelope rules shared by every endpoint.
func parseBody(status int, body []byte) (gjson.Result, *exchange.Error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		if status >= 200 && status < 300 {
			return gjson.Result{}, nil
		}
		return gjson.Result{}, exchange.APIError(status, http.StatusText(status))
	}
	if !gjson.Valid(trimmed) {
		return gjson.Result{}, exchange.APIError(exchange.CodeAPIMessage, "invalid JSON response: "+abbreviate(trimmed))
	}
	root := gjson.Parse(trimmed)
	if root.IsObject() {
		if msg := root.Get("message"); msg.Exists() {
			return gjson.Result{}, exchange.APIError(exchange.CodeAPIMessage, msg.String())
		}
	}
	if status >= 300 {
		return gjson.Result{}, exchange.APIError(status, http.StatusText(status))
	}
	return root, nil
}

func abbreviate(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

// listOf returns the elements of a top-level array, or of the first
// array-valued member of a top-level object.
func listOf(root gjson.Result) []gjson.Result {
	if root.IsArray() {
		return root.Array()
	}
	var found []gjson.Result
	if root.IsObject() {
		root.ForEach(func(_, value gjson.Result) bool {
			if value.IsArray() {
				found = value.Array()
				return false
			}
			return true
		})
	}
	return found
}

func decodeList[T any](item func(gjson.Result) T) func(gjson.Result) []T {
	return func(root gjson.Result) []T {
		elems := listOf(root)
		out := make([]T, 0, len(elems))
		for _, e := range elems {
			out = append(out, item(e))
		}
		return out
	}
}

// fields reads members of one JSON object by name. Each accessor reports
// whether the member was present and well typed; dst is untouched otherwise.
type fields struct {
	obj gjson.Result
}

func (f fields) get(name string) gjson.Result {
	if !f.obj.IsObject() {
		return gjson.Result{}
	}
	return f.obj.Get(name)
}

func (f fields) String(name string, dst *string) bool {
	v := f.get(name)
	if v.Type != gjson.String {
		return false
	}
	*dst = v.Str
	return true
}

// Float accepts JSON numbers and numeric strings; the exchange sends most
// quantities as strings.
func (f fields) Float(name string, dst *float64) bool {
	v := f.get(name)
	switch v.Type {
	case gjson.Number:
		*dst = v.Num
		return true
	case gjson.String:
		n, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return false
		}
		*dst = n
		return true
	}
	return false
}

func (f fields) Int(name string, dst *int64) bool {
	v := f.get(name)
	switch v.Type {
	case gjson.Number:
		*dst = v.Int()
		return true
	case gjson.String:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return false
		}
		*dst = n
		return true
	}
	return false
}

func (f fields) Bool(name string, dst *bool) bool {
	v := f.get(name)
	if v.Type != gjson.True && v.Type != gjson.False {
		return false
	}
	*dst = v.Type == gjson.True
	return true
}

func (f fields) Time(name string, dst *time.Time) bool {
	var raw string
	if !f.String(name, &raw) {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	*dst = t
	return true
}

func decodeOrder(root gjson.Result) *exchange.Order {
	f := fields{root}
	o := &exchange.Order{}
	var side, typ, tif string
	f.String("id", &o.ID)
	f.String("client_oid", &o.ClientOID)
	f.String("product_id", &o.ProductID)
	if f.String("side", &side) {
		o.Side = exchange.Side(side)
	}
	if f.String("type", &typ) {
		o.Type = exchange.OrderType(typ)
	}
	if f.String("time_in_force", &tif) {
		o.TimeInForce = exchange.TimeInForce(tif)
	}
	f.Float("price", &o.Price)
	f.Float("stop_price", &o.StopPrice)
	f.Float("size", &o.Size)
	f.Float("filled_size", &o.FilledSize)
	f.Float("executed_value", &o.ExecutedValue)
	f.Float("fill_fees", &o.FillFees)
	f.String("status", &o.Status)
	f.String("done_reason", &o.DoneReason)
	f.Bool("post_only", &o.PostOnly)
	f.Bool("settled", &o.Settled)
	f.String("stp", &o.STP)
	f.Time("created_at", &o.CreatedAt)
	f.Time("done_at", &o.DoneAt)
	return o
}

func decodeProduct(root gjson.Result) exchange.Product {
	f := fields{root}
	var p exchange.Product
	f.String("id", &p.ID)
	f.String("display_name", &p.DisplayName)
	f.String("base_currency", &p.BaseCurrency)
	f.String("quote_currency", &p.QuoteCurrency)
	f.Float("base_increment", &p.BaseIncrement)
	f.Float("quote_increment", &p.QuoteIncrement)
	f.Float("base_min_size", &p.BaseMinSize)
	f.Float("base_max_size", &p.BaseMaxSize)
	f.Float("min_market_funds", &p.MinMarketFunds)
	f.Float("max_market_funds", &p.MaxMarketFunds)
	f.String("status", &p.Status)
	f.String("status_message", &p.StatusMessage)
	f.Bool("cancel_only", &p.CancelOnly)
	f.Bool("limit_only", &p.LimitOnly)
	f.Bool("post_only", &p.PostOnly)
	f.Bool("trading_disabled", &p.TradingDisabled)
	return p
}

func decodeAccount(root gjson.Result) exchange.Account {
	f := fields{root}
	var a exchange.Account
	f.String("id", &a.ID)
	f.String("currency", &a.Currency)
	f.Float("balance", &a.Balance)
	f.Float("available", &a.Available)
	f.Float("hold", &a.Hold)
	f.String("profile_id", &a.ProfileID)
	return a
}

func decodeTicker(root gjson.Result) *exchange.Ticker {
	f := fields{root}
	t := &exchange.Ticker{}
	f.Int("trade_id", &t.TradeID)
	f.Float("price", &t.Price)
	f.Float("size", &t.Size)
	f.Float("bid", &t.Bid)
	f.Float("ask", &t.Ask)
	f.Float("volume", &t.Volume)
	f.Time("time", &t.Time)
	return t
}

func decodeServerTime(root gjson.Result) *exchange.ServerTime {
	f := fields{root}
	st := &exchange.ServerTime{}
	f.String("iso", &st.ISO)
	var epoch float64
	if f.Float("epoch", &epoch) {
		st.Epoch = int64(epoch * 1000)
	}
	return st
}

// decodeCandle reads a [time, low, high, open, close, volume] row.
func decodeCandle(root gjson.Result) exchange.Candle {
	var c exchange.Candle
	row := root.Array()
	at := func(i int) float64 {
		if i < len(row) && row[i].Type == gjson.Number {
			return row[i].Num
		}
		return 0
	}
	if len(row) > 0 && row[0].Type == gjson.Number {
		c.Time = time.Unix(row[0].Int(), 0).UTC()
	}
	c.Low, c.High, c.Open, c.Close, c.Volume = at(1), at(2), at(3), at(4), at(5)
	return c
}

func decodeFill(root gjson.Result) exchange.Fill {
	f := fields{root}
	var fl exchange.Fill
	var side string
	f.Int("trade_id", &fl.TradeID)
	f.String("product_id", &fl.ProductID)
	f.String("order_id", &fl.OrderID)
	f.Float("price", &fl.Price)
	f.Float("size", &fl.Size)
	f.Float("fee", &fl.Fee)
	if f.String("side", &side) {
		fl.Side = exchange.Side(side)
	}
	f.String("liquidity", &fl.Liquidity)
	f.Bool("settled", &fl.Settled)
	f.Time("created_at", &fl.CreatedAt)
	return fl
}

// cancelAck is the DELETE /orders/{id} response: either the echoed id or a
// full order object.
type cancelAck struct {
	echoed string
	order  *exchange.Order
}

func decodeCancelAck(root gjson.Result) cancelAck {
	switch {
	case root.Type == gjson.String:
		return cancelAck{echoed: root.Str}
	case root.IsArray():
		if ids := root.Array(); len(ids) > 0 {
			return cancelAck{echoed: ids[0].String()}
		}
	case root.IsObject():
		o := decodeOrder(root)
		if o.ID != "" && o.Status != "" {
			return cancelAck{order: o}
		}
		return cancelAck{echoed: o.ID}
	}
	return cancelAck{}
}

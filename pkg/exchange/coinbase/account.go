package coinbase

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"gdax-broker/pkg/exchange"
)

// GetAccounts lists balances for every currency of the profile.
func (c *Client) GetAccounts(ctx context.Context) ([]exchange.Account, error) {
	return doRequest(ctx, c, call{class: Private, method: http.MethodGet, path: "/accounts"}, decodeList(decodeAccount)).Unwrap()
}

// GetPosition reports the holding of a currency. symbol may be a currency
// ("BTC") or a product id ("BTC-USD"), in which case the base currency is used.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	currency := strings.ToUpper(strings.TrimSpace(symbol))
	if base, _, found := strings.Cut(currency, "-"); found {
		currency = base
	}
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Currency, currency) {
			return &exchange.Position{
				Currency:  a.Currency,
				Size:      a.Balance,
				Available: a.Available,
				Hold:      a.Hold,
			}, nil
		}
	}
	return nil, exchange.APIError(exchange.CodePositionNotFound, "position does not exist for "+currency)
}

// GetFills lists executions of one order.
func (c *Client) GetFills(ctx context.Context, orderID string) ([]exchange.Fill, error) {
	q := url.Values{}
	q.Set("order_id", orderID)
	path := "/fills?" + q.Encode()
	return doRequest(ctx, c, call{class: Private, method: http.MethodGet, path: path}, decodeList(decodeFill)).Unwrap()
}

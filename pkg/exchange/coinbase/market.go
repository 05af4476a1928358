package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"gdax-broker/pkg/exchange"
)

// Granularities served natively by the candles endpoint, in seconds.
var supportedGranularities = []int64{60, 300, 900, 3600, 21600, 86400}

const maxCandlesPerPage = 300

// GetProducts returns every product, fetching the list once per client.
func (c *Client) GetProducts(ctx context.Context) ([]exchange.Product, error) {
	if err := c.loadProducts(ctx); err != nil {
		return nil, err
	}
	c.productsMu.Lock()
	defer c.productsMu.Unlock()
	out := make([]exchange.Product, len(c.products))
	copy(out, c.products)
	return out, nil
}

// GetProduct looks a product up in the cached list.
func (c *Client) GetProduct(ctx context.Context, id string) (*exchange.Product, error) {
	if err := c.loadProducts(ctx); err != nil {
		return nil, err
	}
	c.productsMu.Lock()
	defer c.productsMu.Unlock()
	idx, ok := c.productIdx[id]
	if !ok {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("unknown product %s", id))
	}
	p := c.products[idx]
	return &p, nil
}

// loadProducts holds the lock across the fetch so concurrent first callers
// share one request. Failures are not cached.
func (c *Client) loadProducts(ctx context.Context) error {
	c.productsMu.Lock()
	defer c.productsMu.Unlock()
	if c.productIdx != nil {
		return nil
	}
	res := doRequest(ctx, c, call{class: Public, method: http.MethodGet, path: "/products"}, decodeList(decodeProduct))
	products, err := res.Unwrap()
	if err != nil {
		return err
	}
	idx := make(map[string]int, len(products))
	for i, p := range products {
		idx[p.ID] = i
	}
	c.products, c.productIdx = products, idx
	return nil
}

// GetTicker returns the latest trade for a product.
func (c *Client) GetTicker(ctx context.Context, productID string) (*exchange.Ticker, error) {
	path := "/products/" + url.PathEscape(productID) + "/ticker"
	return doRequest(ctx, c, call{class: Public, method: http.MethodGet, path: path}, decodeTicker).Unwrap()
}

// GetTime returns the exchange clock.
func (c *Client) GetTime(ctx context.Context) (*exchange.ServerTime, error) {
	return doRequest(ctx, c, call{class: Public, method: http.MethodGet, path: "/time"}, decodeServerTime).Unwrap()
}

// GetCandles returns up to n bars of the given granularity ending at end, in
// chronological order. Granularities the endpoint does not serve are built
// from the largest native granularity that divides them. A zero start is
// derived from n; n <= 0 returns everything between start and end.
func (c *Client) GetCandles(ctx context.Context, productID string, start, end time.Time, granularity time.Duration, n int) ([]exchange.Candle, error) {
	seconds := int64(granularity / time.Second)
	native, factor, ok := resolveGranularity(seconds)
	if !ok {
		return nil, exchange.APIError(exchange.CodeAPIMessage, fmt.Sprintf("granularity %d is not supported", seconds))
	}
	step := time.Duration(native) * time.Second
	if end.IsZero() {
		end = c.clock.Now()
	}
	want := 0
	if n > 0 {
		want = n * factor
	}
	if start.IsZero() {
		if want == 0 {
			return nil, exchange.APIError(exchange.CodeAPIMessage, "candles need a start time or a bar count")
		}
		start = end.Add(-time.Duration(want) * step)
	}
	if !start.Before(end) {
		return nil, exchange.APIError(exchange.CodeAPIMessage, "candle range start must precede end")
	}

	raw, err := c.fetchCandles(ctx, productID, start, end, native, want)
	if err != nil {
		return nil, err
	}
	bars := AggregateCandles(raw, factor)
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// fetchCandles pages backwards from end in windows of at most 300 bars.
func (c *Client) fetchCandles(ctx context.Context, productID string, start, end time.Time, native int64, want int) ([]exchange.Candle, error) {
	step := time.Duration(native) * time.Second
	byTime := make(map[int64]exchange.Candle)
	pageEnd := end
	for {
		pageStart := pageEnd.Add(-(maxCandlesPerPage - 1) * step)
		if pageStart.Before(start) {
			pageStart = start
		}
		q := url.Values{}
		q.Set("start", pageStart.UTC().Format(time.RFC3339))
		q.Set("end", pageEnd.UTC().Format(time.RFC3339))
		q.Set("granularity", fmt.Sprint(native))
		path := "/products/" + url.PathEscape(productID) + "/candles?" + q.Encode()

		page, err := doRequest(ctx, c, call{class: Public, method: http.MethodGet, path: path}, decodeList(decodeCandle)).Unwrap()
		if err != nil {
			return nil, err
		}
		for _, bar := range page {
			if bar.Time.Before(pageStart) || bar.Time.After(pageEnd) {
				continue
			}
			byTime[bar.Time.Unix()] = bar
		}
		if !pageStart.After(start) || (want > 0 && len(byTime) >= want) {
			break
		}
		pageEnd = pageStart.Add(-step)
		if pageEnd.Before(start) {
			break
		}
	}

	out := make([]exchange.Candle, 0, len(byTime))
	for _, bar := range byTime {
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func resolveGranularity(seconds int64) (native int64, factor int, ok bool) {
	if seconds <= 0 {
		return 0, 0, false
	}
	for i := len(supportedGranularities) - 1; i >= 0; i-- {
		g := supportedGranularities[i]
		if seconds%g == 0 {
			return g, int(seconds / g), true
		}
	}
	return 0, 0, false
}

// AggregateCandles merges every n consecutive bars of a chronological series
// into one: first open, highest high, lowest low, last close, summed volume.
// Groups are anchored at the newest bar; leftover older bars are dropped.
func AggregateCandles(raw []exchange.Candle, n int) []exchange.Candle {
	if n <= 1 {
		out := make([]exchange.Candle, len(raw))
		copy(out, raw)
		return out
	}
	out := make([]exchange.Candle, 0, len(raw)/n)
	for i := len(raw) % n; i+n <= len(raw); i += n {
		group := raw[i : i+n]
		bar := exchange.Candle{
			Time:  group[0].Time,
			Open:  group[0].Open,
			High:  group[0].High,
			Low:   group[0].Low,
			Close: group[n-1].Close,
		}
		for _, c := range group {
			if c.High > bar.High {
				bar.High = c.High
			}
			if c.Low < bar.Low {
				bar.Low = c.Low
			}
			bar.Volume += c.Volume
		}
		out = append(out, bar)
	}
	return out
}

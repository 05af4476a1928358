package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdax-broker/pkg/exchange"
)

func TestResolveGranularity(t *testing.T) {
	cases := []struct {
		seconds int64
		native  int64
		factor  int
	}{
		{60, 60, 1},
		{120, 60, 2},
		{600, 300, 2},
		{1800, 900, 2},
		{7200, 3600, 2},
		{43200, 21600, 2},
		{604800, 86400, 7},
	}
	for _, tc := range cases {
		native, factor, ok := resolveGranularity(tc.seconds)
		require.True(t, ok, tc.seconds)
		assert.Equal(t, tc.native, native, tc.seconds)
		assert.Equal(t, tc.factor, factor, tc.seconds)
	}
	_, _, ok := resolveGranularity(45)
	assert.False(t, ok)
	_, _, ok = resolveGranularity(0)
	assert.False(t, ok)
}

func TestAggregateCandles(t *testing.T) {
	base := time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)
	raw := []exchange.Candle{
		{Time: base, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{Time: base.Add(time.Minute), Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		{Time: base.Add(2 * time.Minute), Open: 14, High: 14, Low: 7, Close: 8, Volume: 3},
		{Time: base.Add(3 * time.Minute), Open: 8, High: 9, Low: 8, Close: 9, Volume: 4},
		{Time: base.Add(4 * time.Minute), Open: 9, High: 13, Low: 8.5, Close: 12, Volume: 5},
	}

	bars := AggregateCandles(raw, 5)
	require.Len(t, bars, 1)
	assert.Equal(t, exchange.Candle{Time: base, Open: 10, High: 15, Low: 7, Close: 12, Volume: 15}, bars[0])

	// Groups anchor at the newest bar; the oldest leftover is dropped.
	bars = AggregateCandles(raw, 2)
	require.Len(t, bars, 2)
	assert.Equal(t, base.Add(time.Minute), bars[0].Time)
	assert.Equal(t, 11.0, bars[0].Open)
	assert.Equal(t, 8.0, bars[0].Close)
	assert.Equal(t, 5.0, bars[0].Volume)
	assert.Equal(t, base.Add(3*time.Minute), bars[1].Time)
	assert.Equal(t, 13.0, bars[1].High)

	same := AggregateCandles(raw, 1)
	require.Equal(t, raw, same)
	same[0].Open = -1
	assert.Equal(t, 10.0, raw[0].Open)
}

// serveCandles answers candle requests with one bar per step between the
// requested start and end, newest first, like the real endpoint.
func serveCandles(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		require.NoError(t, err)
		end, err := time.Parse(time.RFC3339, q.Get("end"))
		require.NoError(t, err)
		g, err := strconv.ParseInt(q.Get("granularity"), 10, 64)
		require.NoError(t, err)
		step := time.Duration(g) * time.Second

		var rows []string
		for at := end; !at.Before(start); at = at.Add(-step) {
			k := float64(at.Unix() / 60)
			rows = append(rows, fmt.Sprintf("[%d,%g,%g,%g,%g,1]", at.Unix(), k-1, k+1, k, k+0.5))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}
}

func TestGetCandlesPagesBackwards(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle(http.MethodGet, "/products/BTC-USD/candles", serveCandles(t))
	end := time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)

	bars, err := env.client.GetCandles(context.Background(), "BTC-USD", time.Time{}, end, time.Minute, 500)
	require.NoError(t, err)
	require.Len(t, bars, 500)
	assert.Equal(t, end, bars[len(bars)-1].Time)
	assert.Equal(t, end.Add(-499*time.Minute), bars[0].Time)
	for i := 1; i < len(bars); i++ {
		require.Equal(t, time.Minute, bars[i].Time.Sub(bars[i-1].Time))
	}

	calls := env.fake.callsTo(http.MethodGet, "/products/BTC-USD/candles")
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Contains(t, call.query, "granularity=60")
	}
}

func TestGetCandlesAggregatesUnsupportedGranularity(t *testing.T) {
	env := newTestEnv(t)
	env.fake.handle(http.MethodGet, "/products/BTC-USD/candles", serveCandles(t))
	end := time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)

	bars, err := env.client.GetCandles(context.Background(), "BTC-USD", time.Time{}, end, 10*time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	last := bars[1]
	k := func(at time.Time) float64 { return float64(at.Unix() / 60) }
	assert.Equal(t, end.Add(-5*time.Minute), last.Time)
	assert.Equal(t, k(end.Add(-5*time.Minute)), last.Open)
	assert.Equal(t, k(end)+0.5, last.Close)
	assert.Equal(t, k(end)+1, last.High)
	assert.Equal(t, k(end.Add(-5*time.Minute))-1, last.Low)
	assert.Equal(t, 2.0, last.Volume)

	calls := env.fake.callsTo(http.MethodGet, "/products/BTC-USD/candles")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].query, "granularity=300")
}

func TestGetCandlesRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	end := time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)

	_, err := env.client.GetCandles(ctx, "BTC-USD", time.Time{}, end, 45*time.Second, 10)
	require.ErrorIs(t, err, exchange.ErrAPI)

	_, err = env.client.GetCandles(ctx, "BTC-USD", time.Time{}, end, time.Minute, 0)
	require.ErrorIs(t, err, exchange.ErrAPI)

	_, err = env.client.GetCandles(ctx, "BTC-USD", end, end, time.Minute, 10)
	require.ErrorIs(t, err, exchange.ErrAPI)
}

func TestGetTicker(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/products/BTC-USD/ticker", ok(`{"trade_id":86326522,"price":"23000.12","size":"0.01","bid":"23000.11","ask":"23000.13","volume":"1234.5","time":"2023-02-01T12:00:00.5Z"}`))

	tick, err := env.client.GetTicker(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, int64(86326522), tick.TradeID)
	assert.Equal(t, 23000.12, tick.Price)
	assert.Equal(t, 23000.13, tick.Ask)
}

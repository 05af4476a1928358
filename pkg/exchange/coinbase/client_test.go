package coinbase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdax-broker/pkg/exchange"
)

func TestNewClientValidatesCredentials(t *testing.T) {
	_, err := NewClient(exchange.Credentials{Key: "k", Passphrase: "p", Secret: testSecret})
	require.NoError(t, err)

	_, err = NewClient(exchange.Credentials{Key: "k", Passphrase: "p", Secret: "not base64!!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exchange.ErrSigning))

	_, err = NewClient(exchange.Credentials{Passphrase: "p", Secret: testSecret})
	require.ErrorIs(t, err, exchange.ErrSigning)

	_, err = NewClient(exchange.Credentials{Key: "k", Passphrase: "p"})
	require.ErrorIs(t, err, exchange.ErrSigning)
}

func TestSignerDeterministic(t *testing.T) {
	signer, err := NewSigner(exchange.Credentials{Key: "k", Passphrase: "p", Secret: testSecret}, nil)
	require.NoError(t, err)

	at := time.Unix(1675252800, 0)
	ts, sig, err := signer.SignAt(at, "POST", "/orders", `{"size":"1"}`)
	require.NoError(t, err)
	require.Equal(t, "1675252800", ts)

	mac := hmac.New(sha256.New, []byte("a-very-secret-signing-key"))
	mac.Write([]byte("1675252800POST/orders{\"size\":\"1\"}"))
	require.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), sig)

	_, again, err := signer.SignAt(at, "POST", "/orders", `{"size":"1"}`)
	require.NoError(t, err)
	require.Equal(t, sig, again)

	variants := [][3]string{
		{"GET", "/orders", `{"size":"1"}`},
		{"POST", "/orders?status=all", `{"size":"1"}`},
		{"POST", "/orders", `{"size":"2"}`},
	}
	for _, v := range variants {
		_, other, err := signer.SignAt(at, v[0], v[1], v[2])
		require.NoError(t, err)
		require.NotEqual(t, sig, other, "%v", v)
	}
	_, later, err := signer.SignAt(at.Add(time.Second), "POST", "/orders", `{"size":"1"}`)
	require.NoError(t, err)
	require.NotEqual(t, sig, later)
}

func TestPrivateRequestsAreSigned(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/accounts", ok(`[{"id":"a1","currency":"BTC","balance":"1.5","available":"1.0","hold":"0.5"}]`))

	accounts, err := env.client.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, 1.5, accounts[0].Balance)

	calls := env.fake.callsTo(http.MethodGet, "/accounts")
	require.Len(t, calls, 1)
	h := calls[0].header
	assert.Equal(t, "key-1", h.Get("CB-ACCESS-KEY"))
	assert.Equal(t, "pass-1", h.Get("CB-ACCESS-PASSPHRASE"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, defaultUserAgent, h.Get("User-Agent"))

	ts, sig, err := env.client.signer.SignAt(env.clock.Now(), http.MethodGet, "/accounts", "")
	require.NoError(t, err)
	assert.Equal(t, ts, h.Get("CB-ACCESS-TIMESTAMP"))
	assert.Equal(t, sig, h.Get("CB-ACCESS-SIGN"))
}

func TestPublicRequestsCarryNoCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/time", ok(`{"iso":"2023-02-01T12:00:00.123Z","epoch":1675252800.123}`))

	st, err := env.client.GetTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1675252800123), st.Epoch)
	assert.Equal(t, int64(1675252800), st.Time().Unix())

	h := env.fake.callsTo(http.MethodGet, "/time")[0].header
	assert.Empty(t, h.Get("CB-ACCESS-KEY"))
	assert.Empty(t, h.Get("CB-ACCESS-SIGN"))
}

func TestAPIErrorsSurfaceVerbatim(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/accounts", reply{status: http.StatusUnauthorized, body: `{"message":"invalid signature"}`})

	_, err := env.client.GetAccounts(context.Background())
	require.ErrorIs(t, err, exchange.ErrAPI)
	var e *exchange.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, exchange.CodeAPIMessage, e.Code)
	assert.Equal(t, "invalid signature", e.Message)

	env.fake.on(http.MethodGet, "/products/BTC-USD/ticker", reply{status: http.StatusBadGateway, body: ""})
	_, err = env.client.GetTicker(context.Background(), "BTC-USD")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusBadGateway, e.Code)
}

func TestTransportErrorOnRefusedConnection(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client, err := NewClient(exchange.Credentials{Key: "k", Passphrase: "p", Secret: testSecret}, WithBaseURL(url))
	require.NoError(t, err)

	_, err = client.GetTime(context.Background())
	require.ErrorIs(t, err, exchange.ErrTransport)
	var e *exchange.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, exchange.CodeConnectionRefused, e.Code)
}

func TestRequestHonoursCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.client.GetAccounts(ctx)
	require.ErrorIs(t, err, exchange.ErrAborted)
}

func TestGetPosition(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/accounts", ok(`[
		{"id":"a1","currency":"BTC","balance":"2","available":"1.5","hold":"0.5"},
		{"id":"a2","currency":"USD","balance":"1000","available":"1000","hold":"0"}]`))

	pos, err := env.client.GetPosition(context.Background(), "btc-usd")
	require.NoError(t, err)
	assert.Equal(t, exchange.Position{Currency: "BTC", Size: 2, Available: 1.5, Hold: 0.5}, *pos)

	_, err = env.client.GetPosition(context.Background(), "LTC")
	var e *exchange.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, exchange.CodePositionNotFound, e.Code)
	assert.Contains(t, e.Message, "LTC")
}

func TestProductsFetchedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	products, err := env.client.GetProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	p, err := env.client.GetProduct(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 0.01, p.QuoteIncrement)
	assert.Equal(t, 0.001, p.BaseMinSize)

	_, err = env.client.GetProduct(ctx, "DOGE-USD")
	require.ErrorIs(t, err, exchange.ErrAPI)

	assert.Len(t, env.fake.callsTo(http.MethodGet, "/products"), 1)
}

func TestGetFillsQueriesByOrder(t *testing.T) {
	env := newTestEnv(t)
	env.fake.on(http.MethodGet, "/fills", ok(`[{"trade_id":7,"product_id":"BTC-USD","order_id":"o1","price":"100.5","size":"0.2","fee":"0.01","side":"buy","liquidity":"T","settled":true,"created_at":"2023-02-01T12:00:00.5Z"}]`))

	fills, err := env.client.GetFills(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(7), fills[0].TradeID)
	assert.Equal(t, exchange.SideBuy, fills[0].Side)
	assert.True(t, fills[0].Settled)
	assert.Equal(t, "order_id=o1", env.fake.callsTo(http.MethodGet, "/fills")[0].query)
}

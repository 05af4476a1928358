package coinbase

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gdax-broker/pkg/exchange"
)

const testProducts = `[
  {"id":"BTC-USD","display_name":"BTC/USD","base_currency":"BTC","quote_currency":"USD",
   "base_increment":"0.00000001","quote_increment":"0.01","base_min_size":"0.001","base_max_size":"100",
   "status":"online","cancel_only":false,"limit_only":false,"post_only":false,"trading_disabled":false},
  {"id":"ETH-USD","display_name":"ETH/USD","base_currency":"ETH","quote_currency":"USD",
   "base_increment":"0.0001","quote_increment":"0.01","base_min_size":"0.01","base_max_size":"1000",
   "status":"online","cancel_only":true,"limit_only":false,"post_only":false,"trading_disabled":false}
]`

var testSecret = base64.StdEncoding.EncodeToString([]byte("a-very-secret-signing-key"))

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	naps  int
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.naps++
	c.slept += d
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memIDs is an in-process IDSource.
type memIDs struct {
	mu         sync.Mutex
	next       int32
	live       map[int32]string
	tombstoned []int32
}

func newMemIDs() *memIDs {
	return &memIDs{live: make(map[int32]string)}
}

func (m *memIDs) NextID(context.Context) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return m.next, nil
}

func (m *memIDs) Record(_ context.Context, id int32, exchangeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[id] = exchangeID
	return nil
}

func (m *memIDs) Tombstone(_ context.Context, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, id)
	m.tombstoned = append(m.tombstoned, id)
	return nil
}

func (m *memIDs) Lookup(_ context.Context, id int32) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live[id]
	return v, ok
}

func (m *memIDs) isTombstoned(id int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tombstoned {
		if t == id {
			return true
		}
	}
	return false
}

type memLedger struct {
	mu     sync.Mutex
	trades []exchange.ClosedTrade
}

func (l *memLedger) Record(_ context.Context, trade exchange.ClosedTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trade)
	return nil
}

type reply struct {
	status int
	body   string
}

func ok(body string) reply { return reply{status: http.StatusOK, body: body} }

type recordedCall struct {
	method string
	path   string
	query  string
	body   string
	header http.Header
}

// fakeExchange serves queued replies per "METHOD /path". The last reply of a
// queue repeats; unknown routes answer 404 NotFound like the real API.
type fakeExchange struct {
	mu       sync.Mutex
	replies  map[string][]reply
	handlers map[string]http.HandlerFunc
	calls    []recordedCall
	server   *httptest.Server
}

func newFakeExchange(t *testing.T) *fakeExchange {
	t.Helper()
	f := &fakeExchange{
		replies:  make(map[string][]reply),
		handlers: make(map[string]http.HandlerFunc),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	f.on(http.MethodGet, "/products", ok(testProducts))
	return f
}

func (f *fakeExchange) on(method, path string, replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method+" "+path] = replies
}

func (f *fakeExchange) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

func (f *fakeExchange) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		body:   string(body),
		header: r.Header.Clone(),
	})
	h := f.handlers[key]
	queue := f.replies[key]
	var next reply
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			f.replies[key] = queue[1:]
		}
	}
	f.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(queue) == 0 {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"NotFound"}`)
		return
	}
	w.WriteHeader(next.status)
	_, _ = io.WriteString(w, next.body)
}

func (f *fakeExchange) callsTo(method, path string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			out = append(out, c)
		}
	}
	return out
}

type testEnv struct {
	client *Client
	fake   *fakeExchange
	clock  *fakeClock
	ids    *memIDs
	ledger *memLedger
}

func newTestEnv(t *testing.T, opts ...ClientOption) *testEnv {
	t.Helper()
	env := &testEnv{
		fake:   newFakeExchange(t),
		clock:  newFakeClock(),
		ids:    newMemIDs(),
		ledger: &memLedger{},
	}
	base := []ClientOption{
		WithBaseURL(env.fake.server.URL),
		WithClock(env.clock),
		WithOrderIDs(env.ids),
		WithLedger(env.ledger),
		WithRateLimits(1000, 1000),
	}
	client, err := NewClient(exchange.Credentials{Key: "key-1", Passphrase: "pass-1", Secret: testSecret}, append(base, opts...)...)
	require.NoError(t, err)
	env.client = client
	return env
}

package coinbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/pkg/exchange"
)

// call describes one REST request. path includes the query string because the
// signature covers it.
type call struct {
	class  EndpointClass
	method string
	path   string
	body   []byte

	// detached calls ignore the progress callback.
	detached bool
}

type httpOutcome struct {
	status int
	body   []byte
	err    error
}

// doRequest runs the whole pipeline: throttle, sign, send, parse. It never
// panics and always returns a Result.
func doRequest[T any](ctx context.Context, c *Client, rc call, decode func(gjson.Result) T) exchange.Result[T] {
	start := time.Now()
	status, body, failure := c.roundTrip(ctx, rc)
	if failure == nil {
		var root gjson.Result
		root, failure = parseBody(status, body)
		if failure == nil {
			c.observe(rc, start, "ok")
			return exchange.Ok(decode(root))
		}
	}
	c.observe(rc, start, failure.Kind.String())
	logx.WithContext(ctx).Debugf("gdax %s %s failed: %v", rc.method, rc.path, failure)
	return exchange.Fail[T](failure)
}

func (c *Client) observe(rc call, start time.Time, outcome string) {
	metricRequestTotal.Inc(rc.class.String(), rc.method, outcome)
	metricRequestDuration.Observe(time.Since(start).Milliseconds(), rc.class.String(), rc.method)
}

func (c *Client) roundTrip(ctx context.Context, rc call) (int, []byte, *exchange.Error) {
	progress := c.progress
	if rc.detached {
		progress = nil
	}
	if err := c.throttler(rc.class).Wait(ctx, progress); err != nil {
		return 0, nil, exchange.AsError(err)
	}

	req, err := http.NewRequest(rc.method, c.baseURL+rc.path, bytes.NewReader(rc.body))
	if err != nil {
		return 0, nil, exchange.TransportError(exchange.CodeTransferFailed, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if rc.class == Private {
		ts, sig, failure := c.sign(rc)
		if failure != nil {
			return 0, nil, failure
		}
		req.Header.Set("CB-ACCESS-KEY", c.signer.key)
		req.Header.Set("CB-ACCESS-PASSPHRASE", c.signer.passphrase)
		req.Header.Set("CB-ACCESS-SIGN", sig)
		req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
		req.Header.Set("Content-Type", "application/json")
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan httpOutcome, 1)
	go func() {
		done <- c.send(req.WithContext(reqCtx))
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case out := <-done:
			if out.err != nil {
				if ctx.Err() != nil {
					return 0, nil, exchange.AbortedError("request cancelled: " + ctx.Err().Error())
				}
				return 0, nil, exchange.TransportError(transportCode(out.err), out.err)
			}
			logx.WithContext(ctx).Debugf("gdax %s %s -> %d (%d bytes)", rc.method, rc.path, out.status, len(out.body))
			return out.status, out.body, nil
		case <-ticker.C:
			if progress != nil && !progress() {
				cancel()
				<-done
				return 0, nil, exchange.AbortedError("request aborted by caller")
			}
		}
	}
}

// sign retries once before giving up on the call.
func (c *Client) sign(rc call) (string, string, *exchange.Error) {
	ts, sig, err := c.signer.Sign(rc.method, rc.path, string(rc.body))
	if err == nil {
		return ts, sig, nil
	}
	logx.Errorf("gdax: signing %s %s failed, retrying: %v", rc.method, rc.path, err)
	ts, sig, err = c.signer.Sign(rc.method, rc.path, string(rc.body))
	if err != nil {
		return "", "", exchange.AsError(err)
	}
	return ts, sig, nil
}

func (c *Client) send(req *http.Request) httpOutcome {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpOutcome{err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpOutcome{err: fmt.Errorf("read response body: %w", err)}
	}
	return httpOutcome{status: resp.StatusCode, body: body}
}

func transportCode(err error) int {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return exchange.CodeResolveFailure
	case errors.Is(err, syscall.ECONNREFUSED):
		return exchange.CodeConnectionRefused
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return exchange.CodeNoResponse
	case errors.As(err, &netErr) && netErr.Timeout():
		return exchange.CodeNoResponse
	}
	return exchange.CodeTransferFailed
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/internal/cli"
	"gdax-broker/internal/config"
	"gdax-broker/internal/svc"
	"gdax-broker/pkg/confkit"
	"gdax-broker/pkg/exchange"
)

const usage = `usage: gdaxctl [-f etc/gdax.yaml] <command> [flags]

commands:
  time | products | ticker PRODUCT | candles PRODUCT
  accounts | position CURRENCY | fills ORDER_ID
  orders | order ID | order-by-client CLIENT_ID
  submit | cancel ID | replace ID | close ID | trades`

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	logx.Close()
	os.Exit(1)
}

func main() {
	configFile := flag.String("f", "etc/gdax.yaml", "the config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath(*configFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	defer logx.Close()
	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := svc.NewServiceContext(ctx, *cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer func() {
		if err := sc.Close(); err != nil {
			logx.Errorf("close order id region: %v", err)
		}
	}()

	out, err := run(ctx, sc, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		var apiErr *exchange.Error
		if errors.As(err, &apiErr) {
			fatalf("%s failed: code=%d %s", flag.Arg(0), apiErr.Code, apiErr.Message)
		}
		fatalf("%s failed: %v", flag.Arg(0), err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encode output: %v", err)
	}
}

func run(ctx context.Context, sc *svc.ServiceContext, cmd string, args []string) (any, error) {
	c := sc.Client
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "time":
		return c.GetTime(ctx)
	case "products":
		return c.GetProducts(ctx)
	case "accounts":
		return c.GetAccounts(ctx)
	case "ticker":
		product, err := positional(fs, args, "PRODUCT")
		if err != nil {
			return nil, err
		}
		return c.GetTicker(ctx, product)
	case "position":
		currency, err := positional(fs, args, "CURRENCY")
		if err != nil {
			return nil, err
		}
		return c.GetPosition(ctx, strings.ToUpper(currency))
	case "fills":
		id, err := positional(fs, args, "ORDER_ID")
		if err != nil {
			return nil, err
		}
		return c.GetFills(ctx, id)
	case "candles":
		granularity := fs.Duration("granularity", time.Hour, "bar width, any multiple of a native granularity")
		count := fs.Int("n", 100, "number of bars")
		product, err := positional(fs, args, "PRODUCT")
		if err != nil {
			return nil, err
		}
		return c.GetCandles(ctx, product, time.Time{}, time.Now().UTC(), *granularity, *count)
	case "orders":
		status := fs.String("status", "all", "comma separated statuses (open, pending, active, done, all)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.GetOrders(ctx, splitList(*status)...)
	case "order":
		id, err := positional(fs, args, "ID")
		if err != nil {
			return nil, err
		}
		return c.GetOrder(ctx, id)
	case "order-by-client":
		raw, err := positional(fs, args, "CLIENT_ID")
		if err != nil {
			return nil, err
		}
		var clientID int32
		if _, err := fmt.Sscanf(raw, "%d", &clientID); err != nil {
			return nil, fmt.Errorf("invalid client id %q", raw)
		}
		return c.GetOrderByClientID(ctx, clientID)
	case "submit":
		var req exchange.OrderRequest
		side := fs.String("side", "buy", "buy or sell")
		tif := fs.String("tif", "", "GTC, GTT, IOC, FOK or DAY")
		fs.StringVar(&req.ProductID, "product", "BTC-USD", "product id")
		fs.Float64Var(&req.Size, "size", 0, "order size in base currency")
		fs.Float64Var(&req.Price, "price", 0, "limit price, zero for market")
		fs.Float64Var(&req.StopPrice, "stop", 0, "stop price")
		fs.BoolVar(&req.PostOnly, "post-only", false, "reject if the order would take liquidity")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		req.Side = exchange.Side(strings.ToLower(*side))
		req.TimeInForce = exchange.TimeInForce(strings.ToUpper(*tif))
		return c.SubmitOrder(ctx, req)
	case "cancel":
		id, err := positional(fs, args, "ID")
		if err != nil {
			return nil, err
		}
		return c.CancelOrder(ctx, id)
	case "replace":
		var req exchange.ReplaceRequest
		tif := fs.String("tif", "", "time in force, inherited when empty")
		fs.Float64Var(&req.Size, "size", 0, "new size, zero for the residual")
		fs.Float64Var(&req.Price, "price", 0, "new price, zero to inherit")
		id, err := positional(fs, args, "ID")
		if err != nil {
			return nil, err
		}
		req.TimeInForce = exchange.TimeInForce(strings.ToUpper(*tif))
		return c.ReplaceOrder(ctx, id, req)
	case "close":
		var req exchange.CloseRequest
		tif := fs.String("tif", "", "time in force for a limit close")
		fs.Float64Var(&req.Size, "size", 0, "size to close, zero for everything filled")
		fs.Float64Var(&req.Price, "price", 0, "limit price, zero for market")
		id, err := positional(fs, args, "ID")
		if err != nil {
			return nil, err
		}
		req.TimeInForce = exchange.TimeInForce(strings.ToUpper(*tif))
		return c.ClosePosition(ctx, id, req)
	case "trades":
		limit := fs.Int("limit", 20, "number of trades")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return sc.Ledger.Recent(ctx, *limit)
	}
	return nil, fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

// configPath falls back to the project's etc/ when a relative path does not
// exist from the working directory.
func configPath(path string) string {
	if _, err := os.Stat(path); err == nil || filepath.IsAbs(path) {
		return path
	}
	return confkit.MustProjectPath(path)
}

// positional parses flags and returns the single required argument that follows them.
func positional(fs *flag.FlagSet, args []string, name string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected %s", fs.Name(), name)
	}
	return fs.Arg(0), nil
}

func splitList(raw string) []string {
	var out []string
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

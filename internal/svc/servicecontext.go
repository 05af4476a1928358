package svc

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // register mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"gdax-broker/internal/config"
	"gdax-broker/pkg/exchange"
	"gdax-broker/pkg/exchange/coinbase"
	"gdax-broker/pkg/ledger"
	"gdax-broker/pkg/orderid"
)

// ServiceContext owns everything one gdaxctl session needs.
type ServiceContext struct {
	Config         config.Config
	ExchangeConfig *exchange.Config

	// DBConn is nil unless the ledger kind is a SQL backend with a DSN.
	DBConn sqlx.SqlConn
	IDs    *orderid.Generator
	Ledger ledger.Recorder
	Client *coinbase.Client
}

// NewServiceContext opens the order id region and the trade ledger and builds
// the exchange client on top of them. Callers must Close the context.
func NewServiceContext(ctx context.Context, c config.Config, opts ...coinbase.ClientOption) (*ServiceContext, error) {
	exCfg := c.Exchange.Value
	if exCfg == nil {
		return nil, errors.New("svc: exchange config not loaded")
	}
	svc := &ServiceContext{Config: c, ExchangeConfig: exCfg}

	svc.DBConn = openLedgerConn(c, exCfg.Ledger.Kind)

	ids, err := orderid.Open(ctx, exCfg.OrderID.Dir,
		orderid.WithEpochYear(exCfg.OrderID.EpochYear),
		orderid.WithLockTimeout(exCfg.OrderID.LockTimeout),
		orderid.WithWarningHandler(func(err error) {
			logx.WithContext(ctx).Errorf("order id region %s: %v", exCfg.OrderID.Dir, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("svc: open order id region: %w", err)
	}
	svc.IDs = ids

	rec, err := ledger.New(ctx, exCfg.Ledger, svc.DBConn)
	if err != nil {
		_ = ids.Close()
		return nil, fmt.Errorf("svc: open trade ledger: %w", err)
	}
	svc.Ledger = rec

	clientOpts := append(coinbase.OptionsFromConfig(exCfg),
		coinbase.WithOrderIDs(ids),
		coinbase.WithLedger(rec),
	)
	client, err := coinbase.NewClient(exCfg.Credentials(), append(clientOpts, opts...)...)
	if err != nil {
		_ = ids.Close()
		return nil, fmt.Errorf("svc: build client: %w", err)
	}
	svc.Client = client
	return svc, nil
}

// openLedgerConn connects only when the ledger needs a database and a DSN is
// provided.
func openLedgerConn(c config.Config, kind string) sqlx.SqlConn {
	switch {
	case kind == exchange.LedgerPostgres && c.Postgres.DSN != "":
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		if db, err := conn.RawDB(); err == nil {
			db.SetMaxOpenConns(c.Postgres.MaxOpen)
			db.SetMaxIdleConns(c.Postgres.MaxIdle)
		}
		return conn
	case kind == exchange.LedgerMySQL && c.MySQL.DSN != "":
		return sqlx.NewMysql(c.MySQL.DSN)
	}
	return nil
}

// Close releases the order id region. The SQL connection pool is shared by
// go-zero and is not closed here.
func (s *ServiceContext) Close() error {
	if s == nil || s.IDs == nil {
		return nil
	}
	return s.IDs.Close()
}

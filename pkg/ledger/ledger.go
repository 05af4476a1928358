// Package ledger records closed trades produced by the order lifecycle manager.
package ledger

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"gdax-broker/pkg/exchange"
)

// Recorder persists closed trades. *coinbase.Client accepts any Recorder as
// its trade recorder.
type Recorder interface {
	Record(ctx context.Context, trade exchange.ClosedTrade) error
	Recent(ctx context.Context, limit int) ([]exchange.ClosedTrade, error)
}

// Noop discards every trade.
type Noop struct{}

func (Noop) Record(context.Context, exchange.ClosedTrade) error { return nil }

func (Noop) Recent(context.Context, int) ([]exchange.ClosedTrade, error) { return nil, nil }

const defaultRecentLimit = 200

// New builds the recorder selected by cfg. conn is required for the SQL kinds
// and ignored otherwise.
func New(ctx context.Context, cfg exchange.LedgerConfig, conn sqlx.SqlConn) (Recorder, error) {
	switch cfg.Kind {
	case "", exchange.LedgerNone:
		return Noop{}, nil
	case exchange.LedgerFile:
		return NewFileRecorder(cfg.Dir)
	case exchange.LedgerPostgres, exchange.LedgerMySQL:
		if conn == nil {
			return nil, fmt.Errorf("ledger: %s ledger needs a database connection", cfg.Kind)
		}
		rec := NewPostgresRecorder(conn)
		if cfg.Kind == exchange.LedgerMySQL {
			rec = NewMySQLRecorder(conn)
		}
		if err := rec.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("ledger: unsupported kind %q", cfg.Kind)
}

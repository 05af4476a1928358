package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"gdax-broker/pkg/exchange"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name   string
	schema string
	insert string
	recent string
}

var postgresDialect = dialect{
	name: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS gdax_closed_trades (
    open_order_id   TEXT NOT NULL,
    close_order_id  TEXT NOT NULL,
    open_client_id  INTEGER NOT NULL,
    close_client_id INTEGER NOT NULL,
    product_id      TEXT NOT NULL,
    side            TEXT NOT NULL,
    size            DOUBLE PRECISION NOT NULL,
    open_price      DOUBLE PRECISION NOT NULL,
    close_price     DOUBLE PRECISION NOT NULL,
    fees            DOUBLE PRECISION NOT NULL,
    profit          DOUBLE PRECISION NOT NULL,
    partial         BOOLEAN NOT NULL,
    closed_at       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (open_order_id, close_order_id)
)`,
	insert: `
INSERT INTO gdax_closed_trades (
    open_order_id, close_order_id, open_client_id, close_client_id, product_id, side,
    size, open_price, close_price, fees, profit, partial, closed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (open_order_id, close_order_id) DO NOTHING`,
	recent: selectTrades + `
ORDER BY closed_at DESC
LIMIT $1`,
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: "CREATE TABLE IF NOT EXISTS gdax_closed_trades (" + `
    open_order_id   VARCHAR(64) NOT NULL,
    close_order_id  VARCHAR(64) NOT NULL,
    open_client_id  INT NOT NULL,
    close_client_id INT NOT NULL,
    product_id      VARCHAR(32) NOT NULL,
    side            VARCHAR(8) NOT NULL,
    size            DOUBLE NOT NULL,
    open_price      DOUBLE NOT NULL,
    close_price     DOUBLE NOT NULL,
    fees            DOUBLE NOT NULL,
    profit          DOUBLE NOT NULL,
    partial         BOOLEAN NOT NULL,
    closed_at       DATETIME(6) NOT NULL,
    PRIMARY KEY (open_order_id, close_order_id),
    KEY idx_closed_at (closed_at)
)`,
	insert: `
INSERT IGNORE INTO gdax_closed_trades (
    open_order_id, close_order_id, open_client_id, close_client_id, product_id, side,
    size, open_price, close_price, fees, profit, partial, closed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	recent: selectTrades + `
ORDER BY closed_at DESC
LIMIT ?`,
}

const selectTrades = `
SELECT
    open_order_id,
    close_order_id,
    open_client_id,
    close_client_id,
    product_id,
    side,
    size,
    open_price,
    close_price,
    fees,
    profit,
    partial,
    closed_at
FROM gdax_closed_trades`

// SQLRecorder stores trades in the gdax_closed_trades table.
type SQLRecorder struct {
	conn    sqlx.SqlConn
	dialect dialect
}

// NewPostgresRecorder wraps an open Postgres connection.
func NewPostgresRecorder(conn sqlx.SqlConn) *SQLRecorder {
	return &SQLRecorder{conn: conn, dialect: postgresDialect}
}

// NewMySQLRecorder wraps an open MySQL connection. The DSN must set
// parseTime=true so closed_at scans into a time.Time.
func NewMySQLRecorder(conn sqlx.SqlConn) *SQLRecorder {
	return &SQLRecorder{conn: conn, dialect: mysqlDialect}
}

// EnsureSchema creates the table when missing.
func (r *SQLRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.conn.ExecCtx(ctx, r.dialect.schema); err != nil {
		return fmt.Errorf("ledger: ensure %s schema: %w", r.dialect.name, err)
	}
	return nil
}

// Record inserts trade; recording the same pair of orders twice is a no-op.
func (r *SQLRecorder) Record(ctx context.Context, trade exchange.ClosedTrade) error {
	_, err := r.conn.ExecCtx(ctx, r.dialect.insert,
		trade.OpenOrderID, trade.CloseOrderID, trade.OpenClientID, trade.CloseClientID,
		trade.ProductID, string(trade.Side), trade.Size, trade.OpenPrice, trade.ClosePrice,
		trade.Fees, trade.Profit, trade.Partial, trade.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: insert trade %s/%s: %w", trade.OpenOrderID, trade.CloseOrderID, err)
	}
	return nil
}

type tradeRow struct {
	OpenOrderID   string    `db:"open_order_id"`
	CloseOrderID  string    `db:"close_order_id"`
	OpenClientID  int64     `db:"open_client_id"`
	CloseClientID int64     `db:"close_client_id"`
	ProductID     string    `db:"product_id"`
	Side          string    `db:"side"`
	Size          float64   `db:"size"`
	OpenPrice     float64   `db:"open_price"`
	ClosePrice    float64   `db:"close_price"`
	Fees          float64   `db:"fees"`
	Profit        float64   `db:"profit"`
	Partial       bool      `db:"partial"`
	ClosedAt      time.Time `db:"closed_at"`
}

// Recent returns trades ordered by close time descending. Limit defaults to
// 200 when non-positive.
func (r *SQLRecorder) Recent(ctx context.Context, limit int) ([]exchange.ClosedTrade, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var rows []tradeRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, r.dialect.recent, limit); err != nil {
		return nil, fmt.Errorf("ledger: recent trades: %w", err)
	}
	out := make([]exchange.ClosedTrade, 0, len(rows))
	for _, row := range rows {
		out = append(out, exchange.ClosedTrade{
			OpenOrderID:   row.OpenOrderID,
			CloseOrderID:  row.CloseOrderID,
			OpenClientID:  int32(row.OpenClientID),
			CloseClientID: int32(row.CloseClientID),
			ProductID:     row.ProductID,
			Side:          exchange.Side(row.Side),
			Size:          row.Size,
			OpenPrice:     row.OpenPrice,
			ClosePrice:    row.ClosePrice,
			Fees:          row.Fees,
			Profit:        row.Profit,
			Partial:       row.Partial,
			ClosedAt:      row.ClosedAt,
		})
	}
	return out, nil
}

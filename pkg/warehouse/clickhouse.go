// Package warehouse mirrors daily balance snapshots into ClickHouse so that
// downstream analytics can query the full history as a columnar table. The
// mirror is write-only from the engine's perspective and is never read back:
// the object store remains the source of truth.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
)

const tableName = "token_balances"

// Opts configures the ClickHouse connection.
type Opts struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// Warehouse writes balance snapshots into a date-partitioned MergeTree
// table. ReplacingMergeTree keyed on the full record identity makes a
// re-mirrored day collapse to a single row set, matching the snapshot
// store's idempotent overwrite semantics.
type Warehouse struct {
	conn   driver.Conn
	logger *zap.Logger
}

// New connects and ensures the table exists.
func New(ctx context.Context, logger *zap.Logger, o Opts) (*Warehouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: o.Addr,
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
		DialTimeout: 30 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	w := &Warehouse{conn: conn, logger: logger}
	if err := w.initTable(ctx); err != nil {
		return nil, err
	}
	logger.Info("warehouse mirror ready", zap.Strings("addr", o.Addr), zap.String("database", o.Database))
	return w, nil
}

func (w *Warehouse) Close() error {
	return w.conn.Close()
}

// initTable creates the balances table. Balances stay in canonical string
// form; casting to a numeric type is the analyst's call, not the engine's.
func (w *Warehouse) initTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			date Date CODEC(DoubleDelta, LZ4),
			holder String CODEC(ZSTD(1)),
			token String CODEC(ZSTD(1)),
			blockchain String CODEC(ZSTD(1)),
			balance String CODEC(ZSTD(1))
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(date)
		ORDER BY (date, holder, token, blockchain)
	`
	if err := w.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", tableName, err)
	}
	return nil
}

// WriteDay batch-inserts one day's snapshot rows.
func (w *Warehouse) WriteDay(ctx context.Context, day date.Day, records []model.BalanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+tableName+" (date, holder, token, blockchain, balance)")
	if err != nil {
		return fmt.Errorf("prepare balances batch for %s: %w", day, err)
	}
	for _, rec := range records {
		if err := batch.Append(day.Time(), rec.Holder, rec.Token, rec.Blockchain, rec.Balance); err != nil {
			return fmt.Errorf("append balance row %s: %w", rec.Key(), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send balances batch for %s: %w", day, err)
	}

	w.logger.Debug("mirrored snapshot to warehouse",
		zap.String("day", day.String()),
		zap.Int("rows", len(records)))
	return nil
}

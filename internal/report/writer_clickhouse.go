package report

import (
	"context"
	"fmt"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

const createEstimatesTable = `
CREATE TABLE IF NOT EXISTS cbs_estimates (
    SessionID     String,
    CreatedAt     DateTime64(3),
    Class         UInt8,
    Observations  UInt64,
    TotalBytes    UInt64,
    TxCount       UInt64,
    Dropped       UInt64,
    Bursts        UInt32,
    Status        String,
    AvgIntervalUs    Float64,
    StddevIntervalUs Float64,
    MeasuredBps   Nullable(Float64),
    BurstRatio    Nullable(Float64),
    AvgGapUs      Nullable(Float64),
    IsShaped      Nullable(Bool),
    IdleSlopeBps  Nullable(Float64),
    SendSlopeBps  Nullable(Float64),
    HiCredit      Nullable(Float64),
    LoCredit      Nullable(Float64),
    Confidence    Nullable(String),
    BandwidthPct  Nullable(Float64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (SessionID, Class);
`

const createGCLTable = `
CREATE TABLE IF NOT EXISTS gcl_entries (
    SessionID   String,
    CreatedAt   DateTime64(3),
    CycleNs     UInt64,
    EntryIndex  UInt16,
    GateStates  UInt8,
    IntervalNs  UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (SessionID, EntryIndex);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn driver.Conn
	log  *logrus.Entry
}

// NewClickHouseWriter connects and makes sure both tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig, log *logrus.Entry) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := initTables(context.Background(), conn); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log.Info("Successfully connected to ClickHouse and ensured tables exist.")

	return &ClickHouseWriter{conn: conn, log: log}, nil
}

// tableConn is the part of driver.Conn table creation needs.
type tableConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// initTables creates both tables, closing conn if that fails.
func initTables(ctx context.Context, conn tableConn) error {
	for _, stmt := range []string{createEstimatesTable, createGCLTable} {
		if err := conn.Exec(ctx, stmt); err != nil {
			conn.Close()
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Name implements model.Writer.
func (w *ClickHouseWriter) Name() string {
	return "clickhouse"
}

// Write inserts one row per class into cbs_estimates and one row per entry
// into gcl_entries.
func (w *ClickHouseWriter) Write(r *model.Report) error {
	ctx := context.Background()

	if err := w.insert(ctx, "INSERT INTO cbs_estimates", estimateRows(r)); err != nil {
		return err
	}
	if err := w.insert(ctx, "INSERT INTO gcl_entries", gclRows(r)); err != nil {
		return err
	}

	w.log.WithFields(logrus.Fields{
		"session": r.SessionID,
		"classes": len(r.Classes),
	}).Info("Wrote report to ClickHouse")
	return nil
}

func (w *ClickHouseWriter) insert(ctx context.Context, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

func estimateRows(r *model.Report) [][]any {
	rows := make([][]any, 0, len(r.Classes))
	for _, c := range r.Classes {
		row := []any{
			r.SessionID, r.CreatedAt, c.Class,
			uint64(c.Observations), c.TotalBytes, c.TxCount, c.Dropped,
			uint32(c.Bursts), c.Status,
			c.AvgIntervalUs, c.StddevIntervalUs,
		}
		if e := c.Estimate; e != nil {
			conf := string(e.Confidence)
			row = append(row,
				&e.MeasuredBps, &e.BurstRatio, &e.AvgGapUs, &e.IsShaped,
				&e.IdleSlopeBps, &e.SendSlopeBps, &e.HiCreditBytes, &e.LoCreditBytes, &conf,
				&e.BandwidthPercent)
		} else {
			row = append(row, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
		}
		rows = append(rows, row)
	}
	return rows
}

func gclRows(r *model.Report) [][]any {
	if r.TAS == nil {
		return nil
	}
	rows := make([][]any, 0, len(r.TAS.GCL))
	for i, e := range r.TAS.GCL {
		rows = append(rows, []any{r.SessionID, r.CreatedAt, r.TAS.CycleNs, uint16(i), e.GateStates, e.DurationNs})
	}
	return rows
}

package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TSNSpectra/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// SessionSummary describes one stored session.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	Classes       uint64    `json:"classes"`
	ShapedClasses uint64    `json:"shaped_classes"`
}

// EstimatePoint is one stored CBS estimate of a class.
type EstimatePoint struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MeasuredBps  float64   `json:"measured_bps"`
	IdleSlopeBps float64   `json:"idle_slope_bps"`
	IsShaped     bool      `json:"is_shaped"`
}

// Filter narrows a history query. Zero fields do not filter.
type Filter struct {
	Since time.Time
	Limit int
}

const defaultLimit = 100

// Querier defines the interface for querying stored reports.
type Querier interface {
	Sessions(ctx context.Context, f Filter) ([]SessionSummary, error)
	ClassHistory(ctx context.Context, class uint8, f Filter) ([]EstimatePoint, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func limitOf(f Filter) int {
	if f.Limit <= 0 {
		return defaultLimit
	}
	return f.Limit
}

func buildSessionsQuery(f Filter) (string, []any) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SessionID,
			max(CreatedAt) AS Created,
			count() AS Classes,
			countIf(IsShaped = true) AS Shaped
		FROM cbs_estimates
	`)

	args := []any{}
	if !f.Since.IsZero() {
		queryBuilder.WriteString(" WHERE CreatedAt >= ?")
		args = append(args, f.Since)
	}
	queryBuilder.WriteString(" GROUP BY SessionID ORDER BY Created DESC LIMIT ?")
	args = append(args, limitOf(f))
	return queryBuilder.String(), args
}

func buildHistoryQuery(class uint8, f Filter) (string, []any) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT SessionID, CreatedAt, MeasuredBps, IdleSlopeBps, IsShaped
		FROM cbs_estimates
	`)

	whereClauses := []string{"Class = ?", "MeasuredBps IS NOT NULL"}
	args := []any{class}
	if !f.Since.IsZero() {
		whereClauses = append(whereClauses, "CreatedAt >= ?")
		args = append(args, f.Since)
	}
	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	queryBuilder.WriteString(" ORDER BY CreatedAt DESC LIMIT ?")
	args = append(args, limitOf(f))
	return queryBuilder.String(), args
}

// Sessions lists stored sessions, newest first.
func (q *clickhouseQuerier) Sessions(ctx context.Context, f Filter) ([]SessionSummary, error) {
	query, args := buildSessionsQuery(f)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.CreatedAt, &s.Classes, &s.ShapedClasses); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClassHistory lists the stored estimates of class, newest first.
func (q *clickhouseQuerier) ClassHistory(ctx context.Context, class uint8, f Filter) ([]EstimatePoint, error) {
	query, args := buildHistoryQuery(class, f)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []EstimatePoint
	for rows.Next() {
		var (
			p        EstimatePoint
			measured *float64
			idle     *float64
			shaped   *bool
		)
		if err := rows.Scan(&p.SessionID, &p.CreatedAt, &measured, &idle, &shaped); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		if measured != nil {
			p.MeasuredBps = *measured
		}
		if idle != nil {
			p.IdleSlopeBps = *idle
		}
		if shaped != nil {
			p.IsShaped = *shaped
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

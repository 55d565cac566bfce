package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	pkgch "OrgTrader/pkg/clickhouse"
	applogger "OrgTrader/pkg/logger"
)

// DefaultBarsTable holds raw closes.
const DefaultBarsTable = "market_bars"

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, table string) *CHBarStore {
	if table == "" {
		table = DefaultBarsTable
	}
	return &CHBarStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

// Snapshots returns one snapshot per timeframe bucket in [from, to), each holding the last
// close of every symbol quoted in that bucket. Buckets come back in ascending order.
func (s *CHBarStore) Snapshots(ctx context.Context, symbols []models.Instrument, from, to time.Time, tf domrepo.Timeframe) ([]models.Snapshot, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	start := time.Now()

	placeholders := make([]string, len(symbols))
	args := make([]interface{}, 0, len(symbols)+2)
	for i, sym := range symbols {
		placeholders[i] = "?"
		args = append(args, string(sym))
	}
	args = append(args, from, to)

	q := fmt.Sprintf(`
		SELECT %s AS bucket, symbol, argMax(close, ts) AS close
		FROM %s
		WHERE symbol IN (%s) AND ts >= ? AND ts < ?
		GROUP BY bucket, symbol
		ORDER BY bucket ASC, symbol ASC`,
		tf.Bucket(), s.table, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logError("clickhouse snapshots query error", tf, err)
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		var (
			bucket time.Time
			symbol string
			px     float64
		)
		if err := rows.Scan(&bucket, &symbol, &px); err != nil {
			s.logError("clickhouse snapshots scan error", tf, err)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bucket = bucket.UTC()
		if n := len(out); n == 0 || !out[n-1].Time.Equal(bucket) {
			out = append(out, models.Snapshot{Time: bucket, Bars: make(map[models.Instrument]models.Bar)})
		}
		out[len(out)-1].Put(models.Bar{Instrument: models.Instrument(symbol), Close: px, Time: bucket})
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse snapshots rows error", tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse snapshots ok",
			applogger.String("table", s.table),
			applogger.String("tf", string(tf)),
			applogger.Int("snapshots", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// StoreBars archives bars with a multi-row insert.
func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*3)
	for _, b := range bars {
		if b.Instrument == "" || b.Time.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?)")
		args = append(args, b.Time.UTC(), string(b.Instrument), b.Close)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, close) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store bars: %w", err)
	}
	return nil
}

func (s *CHBarStore) logError(msg string, tf domrepo.Timeframe, err error) {
	if s.l != nil {
		s.l.Error(msg,
			applogger.String("table", s.table),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
	}
}

var _ domrepo.BarStore = (*CHBarStore)(nil)

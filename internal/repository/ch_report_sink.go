package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	pkgch "OrgTrader/pkg/clickhouse"
)

// DefaultHistoryTable holds per-epoch confidences and blended weights.
const DefaultHistoryTable = "ensemble_history"

// CHReportSink appends one row per analyst confidence, analyst score and blended weight.
type CHReportSink struct {
	db    *sql.DB
	table string
}

func NewCHReportSink(ch *pkgch.Client, table string) *CHReportSink {
	if table == "" {
		table = DefaultHistoryTable
	}
	return &CHReportSink{db: ch.DB(), table: table}
}

func (s *CHReportSink) Publish(ctx context.Context, r models.EnsembleReport) error {
	values := make([]string, 0, 2*len(r.Analysts)+len(r.Blended))
	args := make([]interface{}, 0, cap(values)*6)
	add := func(kind, key string, v float64) {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, r.Timestamp.UTC(), r.Epoch, r.Name, kind, key, v)
	}

	for _, a := range r.Analysts {
		add("confidence", a.Name, a.Confidence)
		if a.Score != nil {
			add("score", a.Name, *a.Score)
		}
	}
	instrs := make([]string, 0, len(r.Blended))
	for instr := range r.Blended {
		instrs = append(instrs, string(instr))
	}
	sort.Strings(instrs)
	for _, instr := range instrs {
		add("weight", instr, r.Blended[models.Instrument(instr)])
	}
	if len(values) == 0 {
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s (ts, epoch, ensemble, kind, key, value) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

var _ domrepo.ReportSink = (*CHReportSink)(nil)

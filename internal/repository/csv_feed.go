package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/pkg/util"
)

// CSVFeed reads a wide bar file: a header "date,SYM1,SYM2,..." followed by one row of
// closes per epoch. An empty cell means the instrument was not quoted that epoch.
type CSVFeed struct {
	r      *csv.Reader
	closer io.Closer
	instrs []models.Instrument
	line   int
}

// NewCSVFeed reads the header from r.
func NewCSVFeed(r io.Reader) (*CSVFeed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a time column and at least one instrument: %w", ErrBadCSV)
	}
	instrs := make([]models.Instrument, 0, len(header)-1)
	for _, h := range header[1:] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("empty instrument in header: %w", ErrBadCSV)
		}
		instrs = append(instrs, models.Instrument(h))
	}
	return &CSVFeed{r: cr, instrs: instrs, line: 1}, nil
}

// OpenCSVFeed opens path as a CSVFeed. Close releases the file.
func OpenCSVFeed(path string) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed, err := NewCSVFeed(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	feed.closer = f
	return feed, nil
}

// Instruments returns the instruments named in the header.
func (f *CSVFeed) Instruments() []models.Instrument { return f.instrs }

func (f *CSVFeed) Next(ctx context.Context) (models.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, false, err
	}
	rec, err := f.r.Read()
	if errors.Is(err, io.EOF) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("read bars: %w", err)
	}
	f.line++

	ts, ok := util.ParseTime(strings.TrimSpace(rec[0]))
	if !ok {
		return models.Snapshot{}, false, fmt.Errorf("line %d: bad time %q: %w", f.line, rec[0], ErrBadCSV)
	}
	ts = ts.UTC()
	snap := models.Snapshot{Time: ts, Bars: make(map[models.Instrument]models.Bar, len(f.instrs))}
	for i, instr := range f.instrs {
		if i+1 >= len(rec) {
			break
		}
		cell := strings.TrimSpace(rec[i+1])
		if cell == "" {
			continue
		}
		px, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return models.Snapshot{}, false, fmt.Errorf("line %d: %s close %q: %w", f.line, instr, cell, ErrBadCSV)
		}
		snap.Bars[instr] = models.Bar{Instrument: instr, Close: px, Time: ts}
	}
	return snap, true, nil
}

func (f *CSVFeed) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

var _ domrepo.BarFeed = (*CSVFeed)(nil)

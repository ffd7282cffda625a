package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Table is a numeric table with named columns, e.g. a binned light curve.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// Column returns the index of name, matched case-insensitively.
func (t Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i, true
		}
	}
	return -1, false
}

// Values returns a copy of one column.
func (t Table) Values(name string) ([]float64, error) {
	idx, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %s not found", name)
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// FilterValidRows keeps the rows whose column value is > 0. NaN is dropped.
func FilterValidRows(t Table, column string) (Table, error) {
	idx, ok := t.Column(column)
	if !ok {
		return Table{}, fmt.Errorf("column %s not found", column)
	}
	out := Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		v := r[idx]
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		out.Rows = append(out.Rows, append([]float64(nil), r...))
	}
	return out, nil
}

// TableStore reads and writes light-curve tables.
type TableStore interface {
	ReadTable(path string) (Table, error)
	WriteTable(path string, t Table) error
}

// CSVTableStore keeps tables as CSV with a header row.
type CSVTableStore struct{}

var _ TableStore = CSVTableStore{}

func (CSVTableStore) ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Table{}, common.MissingInput("table %s not found", path)
		}
		return Table{}, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read table %s: %w", path, err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("table %s has no header", path)
	}
	t := Table{Columns: records[0]}
	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return Table{}, fmt.Errorf("table %s row %d col %s: %w", path, i+1, t.Columns[j], err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (CSVTableStore) WriteTable(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		_ = f.Close()
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for j, v := range r {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec[:len(r)]); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

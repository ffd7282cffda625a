package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Catalog column names.
const (
	ColObsID = "OBS_ID"
	ColRA    = "RA"
	ColDec   = "DEC"
	ColName  = "SDSS_NAME"
)

// Entry is one catalogued object seen in one observation.
type Entry struct {
	ObsID string
	RA    float64
	Dec   float64
	Name  string
}

type Catalog struct {
	Entries []Entry
}

// Load reads a catalog CSV with a header row.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.MissingInput("catalog %s not found", path)
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Read parses catalog CSV. Columns are located by header name; extra
// columns are ignored.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{ColObsID, ColRA, ColDec, ColName} {
		if _, ok := idx[col]; !ok {
			return nil, common.NewAppError("INVALID_CATALOG", "missing column "+col, common.ErrInvalidInput)
		}
	}

	c := &Catalog{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		ra, err := strconv.ParseFloat(field(ColRA), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: RA: %w", line, err)
		}
		dec, err := strconv.ParseFloat(field(ColDec), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: DEC: %w", line, err)
		}
		c.Entries = append(c.Entries, Entry{ObsID: field(ColObsID), RA: ra, Dec: dec, Name: field(ColName)})
	}
	return c, nil
}

// ForObs returns the entries of one observation in file order.
func (c *Catalog) ForObs(obsID string) []Entry {
	var out []Entry
	for _, e := range c.Entries {
		if e.ObsID == obsID {
			out = append(out, e)
		}
	}
	return out
}

// ObsIDs lists distinct observation ids in first-seen order, capped at max
// catalog ids when max > 0, followed by the manual ids. Blanks and
// duplicates are dropped.
func (c *Catalog) ObsIDs(max int, manual []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) bool {
		id = strings.TrimSpace(id)
		if id == "" {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
		out = append(out, id)
		return true
	}
	if c != nil {
		n := 0
		for _, e := range c.Entries {
			if max > 0 && n >= max {
				break
			}
			if add(e.ObsID) {
				n++
			}
		}
	}
	for _, id := range manual {
		add(id)
	}
	return out
}

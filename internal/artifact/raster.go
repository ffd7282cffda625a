package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/mask"
)

// Raster is an image plus the numeric header keywords that describe it.
type Raster struct {
	Header map[string]float64
	Grid   mask.Grid
}

// RasterStore reads and writes image rasters.
type RasterStore interface {
	ReadRaster(path string) (Raster, error)
	WriteRaster(path string, r Raster) error
}

// TextRasterStore keeps rasters as plain text: "KEY = value" header lines, an
// END line, then one whitespace-separated row per line.
type TextRasterStore struct{}

var _ RasterStore = TextRasterStore{}

const headerEnd = "END"

func (TextRasterStore) ReadRaster(path string) (Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Raster{}, common.MissingInput("raster %s not found", path)
		}
		return Raster{}, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	r, err := DecodeRaster(f)
	if err != nil {
		return Raster{}, fmt.Errorf("raster %s: %w", path, err)
	}
	return r, nil
}

func (TextRasterStore) WriteRaster(path string, r Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster: %w", err)
	}
	if err := EncodeRaster(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DecodeRaster parses the text raster format.
func DecodeRaster(rd io.Reader) (Raster, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)

	out := Raster{Header: map[string]float64{}}
	inHeader := true
	var rows [][]float64
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if inHeader {
			if line == headerEnd {
				inHeader = false
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				return Raster{}, fmt.Errorf("bad header line %q", line)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return Raster{}, fmt.Errorf("header %s: %w", strings.TrimSpace(key), err)
			}
			out.Header[strings.TrimSpace(key)] = v
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Raster{}, fmt.Errorf("row %d: %w", len(rows), err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return Raster{}, err
	}
	if inHeader {
		return Raster{}, fmt.Errorf("missing %s line", headerEnd)
	}
	g, err := mask.FromRows(rows)
	if err != nil {
		return Raster{}, err
	}
	out.Grid = g
	return out, nil
}

// EncodeRaster writes r in the text raster format. Header keys are sorted.
func EncodeRaster(w io.Writer, r Raster) error {
	bw := bufio.NewWriter(w)
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(bw, "%s = %s\n", k, strconv.FormatFloat(r.Header[k], 'g', -1, 64))
	}
	bw.WriteString(headerEnd + "\n")

	g := r.Grid
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(g.At(col, row), 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

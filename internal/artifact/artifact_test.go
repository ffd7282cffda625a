package artifact

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/mask"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestFindBySuffix(t *testing.T) {
	dir := t.TempDir()

	_, _, err := FindBySuffix(dir, "PIEVLI0000.FILTER")
	assert.ErrorIs(t, err, common.ErrMissingInput)

	b := touch(t, dir, "P0123PNS003PIEVLI0000.FILTER")
	touch(t, dir, "P0123PNS003PIEVLI0000_FULL.IMG")

	got, all, err := FindBySuffix(dir, "PIEVLI0000.FILTER")
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Len(t, all, 1)

	a := touch(t, dir, "P0123PNS001PIEVLI0000.FILTER")
	got, all, err = FindBySuffix(dir, "PIEVLI0000.FILTER")
	require.NoError(t, err)
	assert.Equal(t, a, got, "first in lexical order")
	assert.Equal(t, []string{a, b}, all)

	_, _, err = FindBySuffix(filepath.Join(dir, "nope"), ".IMG")
	assert.ErrorIs(t, err, common.ErrMissingInput)
}

func TestFilterValidRows(t *testing.T) {
	in := Table{
		Columns: []string{"TIME", "RATE", "FRACEXP"},
		Rows: [][]float64{
			{1, 10, 0},
			{2, 11, 0.5},
			{3, 12, -1},
			{4, 13, 0.9},
			{5, 14, math.NaN()},
		},
	}
	out, err := FilterValidRows(in, "fracexp")
	require.NoError(t, err)

	frac, err := out.Values("FRACEXP")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.9}, frac)
	times, _ := out.Values("TIME")
	assert.Equal(t, []float64{2, 4}, times)
	assert.Len(t, in.Rows, 5, "input untouched")

	_, err = FilterValidRows(in, "MISSING")
	assert.Error(t, err)
}

func TestCSVTableStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lc.csv")
	store := CSVTableStore{}
	in := Table{Columns: []string{"TIME", "RATE", "FRACEXP"}, Rows: [][]float64{{0, 1.5, 1}, {1000, 2.25, 0.3}}}

	require.NoError(t, store.WriteTable(path, in))
	got, err := store.ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = store.ReadTable(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, common.ErrMissingInput)
}

func TestTextRasterStore(t *testing.T) {
	g, err := mask.FromRows([][]float64{{0, 1, 2}, {3, 4.5, math.NaN()}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "obs.MSK")
	store := TextRasterStore{}

	require.NoError(t, store.WriteRaster(path, Raster{Header: map[string]float64{"LTM1_1": 0.025, "LTV1": -600}, Grid: g}))
	got, err := store.ReadRaster(path)
	require.NoError(t, err)
	assert.Equal(t, 0.025, got.Header["LTM1_1"])
	assert.Equal(t, mask.Shape{Rows: 2, Cols: 3}, got.Grid.Shape)
	assert.Equal(t, 4.5, got.Grid.At(1, 1))
	assert.True(t, math.IsNaN(got.Grid.At(2, 1)))

	_, err = store.ReadRaster(filepath.Join(t.TempDir(), "none.MSK"))
	assert.ErrorIs(t, err, common.ErrMissingInput)

	_, err = DecodeRaster(strings.NewReader("LTV1 = 1\n0 1\n"))
	assert.Error(t, err)
}

func TestStage(t *testing.T) {
	parent := t.TempDir()
	src := touch(t, parent, "mask.SRCMSK")

	a, err := Stage(parent, "temp_mask")
	require.NoError(t, err)
	b, err := Stage(parent, "temp_mask")
	require.NoError(t, err)
	assert.NotEqual(t, a.Dir(), b.Dir())

	staged, err := a.Copy(src, "bkg.SRCMSK")
	require.NoError(t, err)
	assert.True(t, Exists(staged))

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.NoDirExists(t, a.Dir())
	assert.DirExists(t, b.Dir())
	require.NoError(t, b.Release())
}

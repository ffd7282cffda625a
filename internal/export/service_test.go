package export

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/batch"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
)

func sampleResult() batch.Result {
	rep := pipeline.NewReport("0112370101")
	rep.Completed = true
	rep.Objects["J0001"] = &pipeline.ObjectOutcome{
		ObjectID: "J0001",
		Products: map[constants.Role]*pipeline.Product{
			constants.RoleSource:     {Status: constants.ProductSucceeded, Path: "/out/0112370101_J0001_source.LC"},
			constants.RoleBackground: {Status: constants.ProductFailed, Err: errors.New("evselect exited 1")},
			constants.RoleCorrected:  {Status: constants.ProductSkipped},
		},
	}
	rep.Warn("ccf.cif missing")

	return batch.Result{
		RunID:        "run-1",
		Total:        2,
		Succeeded:    1,
		Failed:       1,
		FailedIDs:    []string{"0200000101"},
		MeanElapsed:  2 * time.Second,
		TotalElapsed: 5 * time.Second,
		Units: map[string]batch.UnitResult{
			"0112370101": {ObsID: "0112370101", Status: constants.TaskStatusSucceeded, Elapsed: 2 * time.Second, Report: rep},
			"0200000101": {ObsID: "0200000101", Status: constants.TaskStatusFailed, Elapsed: time.Second, Err: common.MissingInput("no *EVLI*.FIT")},
		},
	}
}

func TestBatchReportXLSX(t *testing.T) {
	b, err := NewService(nil).BatchReportXLSX(sampleResult())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{SheetSummary, SheetUnits, SheetProducts}, f.GetSheetList())

	v, err := f.GetCellValue(SheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", v)

	units, err := f.GetRows(SheetUnits)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "0112370101", units[1][0])
	assert.Equal(t, "SUCCEEDED", units[1][1])
	assert.Equal(t, "1", units[1][4])
	assert.Equal(t, "1", units[1][5])
	assert.Equal(t, "0200000101", units[2][0])
	assert.Equal(t, "FAILED", units[2][1])
	assert.Equal(t, "MissingInputError", units[2][7])

	products, err := f.GetRows(SheetProducts)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, []string{"0112370101", "J0001", "source", "OK", "/out/0112370101_J0001_source.LC"}, products[1])
	assert.Equal(t, "FAILED", products[2][3])
	assert.Equal(t, "evselect exited 1", products[2][5])
	assert.Equal(t, "SKIPPED", products[3][3])
}

func TestWriteBatchReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, NewService(nil).WriteBatchReport(path, sampleResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetUnits)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}

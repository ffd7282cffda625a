package export

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/batch"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
)

const (
	SheetSummary  = "Summary"
	SheetUnits    = "Observations"
	SheetProducts = "Products"
)

// Service renders batch results as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BatchReportXLSX returns a workbook with a summary sheet, one row per
// observation and one row per (object, role) product.
func (s *Service) BatchReportXLSX(res batch.Result) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetUnits, SheetProducts} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	summary := [][]any{
		{"Run ID", res.RunID},
		{"Total", res.Total},
		{"Succeeded", res.Succeeded},
		{"Failed", res.Failed},
		{"Remaining", res.Remaining},
		{"Mean elapsed (s)", res.MeanElapsed.Seconds()},
		{"Total elapsed (s)", res.TotalElapsed.Seconds()},
	}
	for i, r := range summary {
		writeRow(f, SheetSummary, i+1, r...)
	}

	writeRow(f, SheetUnits, 1, "Obs ID", "Status", "Elapsed (s)", "Objects", "Products OK", "Products Failed", "Warnings", "Error Kind", "Error")
	writeRow(f, SheetProducts, 1, "Obs ID", "Object", "Role", "Status", "Path", "Error")

	unitRow, productRow := 2, 2
	for _, id := range sortedUnitIDs(res) {
		u := res.Units[id]
		var objects, ok, failed, warnings int
		if u.Report != nil {
			objects = len(u.Report.Objects)
			ok = u.Report.Count(constants.ProductSucceeded)
			failed = u.Report.Count(constants.ProductFailed)
			warnings = len(u.Report.Warnings)
		}
		errMsg := ""
		if u.Err != nil {
			errMsg = truncate(u.Err.Error(), 240)
		}
		writeRow(f, SheetUnits, unitRow, id, string(u.Status), u.Elapsed.Seconds(), objects, ok, failed, warnings, common.Kind(u.Err), errMsg)
		unitRow++

		if u.Report == nil {
			continue
		}
		for _, objID := range u.Report.ObjectIDs() {
			obj := u.Report.Objects[objID]
			for _, role := range pipeline.Roles {
				p := obj.Products[role]
				if p == nil {
					continue
				}
				perr := ""
				if p.Err != nil {
					perr = truncate(p.Err.Error(), 240)
				}
				writeRow(f, SheetProducts, productRow, id, objID, string(role), string(p.Status), p.Path, perr)
				productRow++
			}
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetSummary, "A", "A", 20)
	_ = f.SetColWidth(SheetSummary, "B", "B", 40)
	_ = f.SetColWidth(SheetUnits, "A", "A", 14)
	_ = f.SetColWidth(SheetUnits, "I", "I", 80)
	_ = f.SetColWidth(SheetProducts, "B", "B", 24)
	_ = f.SetColWidth(SheetProducts, "E", "F", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"run_id", res.RunID,
		"units", unitRow-2,
		"products", productRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteBatchReport renders the workbook to path.
func (s *Service) WriteBatchReport(path string, res batch.Result) error {
	b, err := s.BatchReportXLSX(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func sortedUnitIDs(res batch.Result) []string {
	ids := make([]string, 0, len(res.Units))
	for id := range res.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

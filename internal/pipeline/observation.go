package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/artifact"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/catalog"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/coords"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/mask"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/tool"
)

// Config locates the inputs and outputs of every observation.
type Config struct {
	DataRoot   string // <DataRoot>/<obsid>/ holds the processed observation
	OutputRoot string // <OutputRoot>/<obsid>/ receives masks and light curves
	StagingDir string // parent of staging dirs; empty -> the observation's output dir
}

// Observation runs the light-curve stages for one observation directory.
type Observation struct {
	cfg       Config
	logger    *slog.Logger
	tool      tool.AnalysisTool
	rasters   artifact.RasterStore
	tables    artifact.TableStore
	masks     *mask.Engine
	pairer    *region.Pairer
	catalog   *catalog.Catalog
	generator *catalog.Generator
}

type Option func(*Observation)

func WithRasterStore(s artifact.RasterStore) Option { return func(o *Observation) { o.rasters = s } }
func WithTableStore(s artifact.TableStore) Option   { return func(o *Observation) { o.tables = s } }

// WithCatalog enables region generation for observations that ship without a
// regions directory.
func WithCatalog(c *catalog.Catalog) Option { return func(o *Observation) { o.catalog = c } }

func NewObservation(cfg Config, at tool.AnalysisTool, logger *slog.Logger, opts ...Option) *Observation {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Observation{
		cfg:       cfg,
		logger:    logger,
		tool:      at,
		rasters:   artifact.TextRasterStore{},
		tables:    artifact.CSVTableStore{},
		masks:     mask.NewEngine(logger),
		pairer:    region.NewPairer(logger),
		generator: catalog.NewGenerator(logger),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// unit is the working state of one run.
type unit struct {
	obsID    string
	obsDir   string
	outDir   string
	stageDir string
	logger   *slog.Logger
	report   *Report

	inv        tool.Invocation
	imagePath  string
	imageHdr   map[string]float64
	maskPath   string
	transform  coords.Transformer
	regionsDir string
	sets       map[string]*region.Set

	totalMask    mask.Grid
	totalMaskErr error
}

// Run processes obsID. The returned error is non-nil only when the unit as a
// whole failed; per-object problems are recorded in the report.
func (o *Observation) Run(ctx context.Context, obsID string) (*Report, error) {
	start := time.Now()
	u := &unit{
		obsID:  obsID,
		obsDir: filepath.Join(o.cfg.DataRoot, obsID),
		outDir: filepath.Join(o.cfg.OutputRoot, obsID),
		logger: common.LoggerFromContext(ctx, o.logger).With("obs_id", obsID),
		report: NewReport(obsID),
	}
	u.stageDir = o.cfg.StagingDir
	if u.stageDir == "" {
		u.stageDir = u.outDir
	}
	defer func() { u.report.Elapsed = time.Since(start) }()

	if err := os.MkdirAll(u.outDir, 0o755); err != nil {
		return u.report, fmt.Errorf("create output dir: %w", err)
	}

	stages := []struct {
		name string
		run  func(context.Context, *unit) error
	}{
		{"locate", o.locate},
		{"regions", o.pairRegions},
		{"masks", o.buildMasks},
		{"extract", o.extract},
		{"correct", o.correct},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return u.report, err
		}
		if err := st.run(ctx, u); err != nil {
			u.logger.Error("pipeline."+st.name+".failed", "error", err)
			return u.report, fmt.Errorf("%s: %w", st.name, err)
		}
		u.logger.Debug("pipeline." + st.name + ".ok")
	}

	u.report.Completed = true
	u.logger.Info("observation processed",
		"objects", len(u.report.Objects),
		"products_ok", u.report.Count(constants.ProductSucceeded),
		"products_failed", u.report.Count(constants.ProductFailed),
		"products_skipped", u.report.Count(constants.ProductSkipped),
		"warnings", len(u.report.Warnings),
	)
	return u.report, nil
}

func (o *Observation) locate(_ context.Context, u *unit) error {
	find := func(suffix string) (string, error) {
		path, all, err := artifact.FindBySuffix(u.obsDir, suffix)
		if err != nil {
			return "", err
		}
		if len(all) > 1 {
			u.logger.Warn("pipeline.locate.ambiguous", "suffix", suffix, "candidates", len(all), "chosen", filepath.Base(path))
			u.report.Warn("%d files match *%s; using %s", len(all), suffix, filepath.Base(path))
		}
		return path, nil
	}

	var err error
	if u.inv.EventList, err = find(constants.EventListSuffix); err != nil {
		return err
	}
	if u.imagePath, err = find(constants.ImageSuffix); err != nil {
		return err
	}
	if u.maskPath, err = find(constants.MaskSuffix); err != nil {
		return err
	}

	ccf := filepath.Join(u.obsDir, constants.CalibrationIndexName)
	if artifact.Exists(ccf) {
		u.inv.Calibration = ccf
	} else {
		u.logger.Warn("pipeline.locate.no_calibration", "path", ccf)
		u.report.Warn("calibration index %s not found; running without it", constants.CalibrationIndexName)
	}

	img, err := o.rasters.ReadRaster(u.imagePath)
	if err != nil {
		return err
	}
	u.imageHdr = img.Header
	u.transform = coords.FromHeader(img.Header)
	return nil
}

// pairRegions loads <obs>/regions, generating regions into the output dir
// from the catalog when the observation has none.
func (o *Observation) pairRegions(_ context.Context, u *unit) error {
	u.regionsDir = filepath.Join(u.obsDir, constants.RegionsDirName)
	if _, err := os.Stat(u.regionsDir); errors.Is(err, os.ErrNotExist) && o.catalog != nil {
		if err := o.generateRegions(u); err != nil {
			return err
		}
	}
	sets, err := o.pairer.LoadDir(u.regionsDir)
	if err != nil {
		return err
	}
	u.sets = sets
	for _, id := range region.SortedIDs(sets) {
		set := sets[id]
		out := u.report.object(id)
		for role, perr := range set.Problems {
			out.fail(role, perr)
		}
	}
	u.logger.Info("regions paired", "dir", u.regionsDir, "objects", len(sets))
	return nil
}

func (o *Observation) generateRegions(u *unit) error {
	detPath := detectionRegionFile(u)
	if detPath == "" {
		tablePath := filepath.Join(u.obsDir, constants.DetectionTableName)
		tbl, err := o.tables.ReadTable(tablePath)
		if err != nil {
			return err
		}
		dets, err := catalog.ValidDetections(tbl)
		if err != nil {
			return err
		}
		detPath = filepath.Join(u.outDir, constants.DetectionRegionFile(u.obsID))
		if _, _, err := o.generator.WriteDetectionRegions(detPath, dets, u.transform); err != nil {
			return err
		}
	}
	f, err := region.ParseFile(detPath)
	if err != nil {
		return err
	}

	u.regionsDir = filepath.Join(u.outDir, constants.RegionsDirName)
	st, err := o.generator.GenerateObjectRegions(u.regionsDir, u.obsID, o.catalog.ForObs(u.obsID), f.Specs, u.transform)
	if err != nil {
		return err
	}
	if st.NotFound > 0 {
		u.report.Warn("%d catalog objects had no matching detection", st.NotFound)
	}
	return nil
}

// detectionRegionFile returns the existing detection region file, looking in
// the observation dir first and then the output dir, or "" when neither has one.
func detectionRegionFile(u *unit) string {
	name := constants.DetectionRegionFile(u.obsID)
	for _, dir := range []string{u.obsDir, u.outDir} {
		if p := filepath.Join(dir, name); artifact.Exists(p) {
			return p
		}
	}
	return ""
}

// buildMasks writes the observation mask with all detections excluded, then
// one background mask per object. A failure here only affects the background
// products that need the mask.
func (o *Observation) buildMasks(ctx context.Context, u *unit) error {
	u.totalMask, u.totalMaskErr = o.buildTotalMask(ctx, u)
	if u.totalMaskErr != nil {
		u.logger.Warn("pipeline.masks.total_failed", "error", u.totalMaskErr)
		u.report.Warn("total source mask: %v", u.totalMaskErr)
	}
	return nil
}

func (o *Observation) buildTotalMask(ctx context.Context, u *unit) (mask.Grid, error) {
	base, err := o.rasters.ReadRaster(u.maskPath)
	if err != nil {
		return mask.Grid{}, err
	}
	detPath := detectionRegionFile(u)
	if detPath == "" {
		return mask.Grid{}, common.MissingInput("no %s", constants.DetectionRegionFile(u.obsID))
	}
	f, err := region.ParseFile(detPath)
	if err != nil {
		return mask.Grid{}, err
	}

	tr := u.transform
	if len(base.Header) > 0 {
		tr = coords.FromHeader(mergeHeaders(u.imageHdr, base.Header))
	}
	excl, skips, err := o.masks.BuildExclusionMask(ctx, base.Grid.Shape, f.Specs, tr)
	if err != nil {
		return mask.Grid{}, err
	}
	if len(skips) > 0 {
		u.report.Warn("%d detection regions skipped while masking", len(skips))
	}
	total, err := mask.ApplyExclusion(base.Grid, excl)
	if err != nil {
		return mask.Grid{}, err
	}
	out := filepath.Join(u.outDir, constants.TotalMaskFile(u.obsID))
	if err := o.rasters.WriteRaster(out, artifact.Raster{Header: base.Header, Grid: total}); err != nil {
		return mask.Grid{}, err
	}
	u.transform = tr
	u.logger.Info("total source mask written", "path", out, "excluded_pixels", excl.Count(), "skipped_regions", len(skips))
	return total, nil
}

// mergeHeaders overlays b on a.
func mergeHeaders(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

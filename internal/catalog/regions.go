package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/artifact"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/coords"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

// Detection table columns and their "no value" markers.
const (
	colRadius  = "RADIUS"
	colCounts  = "CNT"
	colBkg     = "BKG"
	colSrcMax  = "SRC_MAX"
	colSrcMean = "SRC_MEAN"

	noCounts = -100
	noSource = -9
)

// Detection is one source found in an observation, radius in arcseconds.
type Detection struct {
	RA, Dec      float64
	RadiusArcsec float64
}

// ValidDetections reads the detection table and drops rows whose counts or
// source statistics carry the no-value markers.
func ValidDetections(t artifact.Table) ([]Detection, error) {
	cols := map[string][]float64{}
	for _, name := range []string{ColRA, ColDec, colRadius, colCounts, colBkg, colSrcMax, colSrcMean} {
		v, err := t.Values(name)
		if err != nil {
			return nil, fmt.Errorf("detection table: %w", err)
		}
		cols[name] = v
	}
	var out []Detection
	for i := range t.Rows {
		if cols[colCounts][i] == noCounts || cols[colBkg][i] == noCounts ||
			cols[colSrcMax][i] == noSource || cols[colSrcMean][i] == noSource {
			continue
		}
		out = append(out, Detection{RA: cols[ColRA][i], Dec: cols[ColDec][i], RadiusArcsec: cols[colRadius][i]})
	}
	return out, nil
}

// Generator writes the per-observation region files derived from detections
// and the catalog.
type Generator struct {
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger}
}

// WriteDetectionRegions converts detections to physical circles and writes
// them to path. Detections that fail to convert are left out and counted.
func (g *Generator) WriteDetectionRegions(path string, dets []Detection, tr coords.Transformer) ([]region.Spec, int, error) {
	var specs []region.Spec
	skipped := 0
	for i, d := range dets {
		x, y, r, err := tr.SkyToPhysical(d.RA, d.Dec, d.RadiusArcsec)
		if err == nil {
			var s region.Spec
			if s, err = region.NewCircle(region.FramePhysical, region.Point{X: x, Y: y}, r); err == nil {
				specs = append(specs, s)
				continue
			}
		}
		skipped++
		g.logger.Warn("catalog.detection.skipped", "index", i, "ra", d.RA, "dec", d.Dec, "error", err)
	}
	if err := region.WriteFile(path, region.FramePhysical, specs); err != nil {
		return nil, skipped, err
	}
	g.logger.Info("detection regions written", "path", path, "regions", len(specs), "skipped", skipped)
	return specs, skipped, nil
}

// GenerateStats counts the outcome of GenerateObjectRegions.
type GenerateStats struct {
	Written  int
	NotFound int
}

// GenerateObjectRegions matches each catalog entry to a detection circle
// within the match tolerance on both axes and writes its source circle and
// background annulus under regionsDir.
func (g *Generator) GenerateObjectRegions(regionsDir, obsID string, entries []Entry, detections []region.Spec, tr coords.Transformer) (GenerateStats, error) {
	var st GenerateStats
	if err := os.MkdirAll(regionsDir, 0o755); err != nil {
		return st, fmt.Errorf("create regions dir: %w", err)
	}
	for _, e := range entries {
		x, y, _, err := tr.SkyToPhysical(e.RA, e.Dec, 0)
		if err != nil {
			st.NotFound++
			g.logger.Warn("catalog.object.transform_failed", "object", e.Name, "error", err)
			continue
		}
		match, ok := nearest(detections, x, y)
		if !ok {
			st.NotFound++
			g.logger.Warn("catalog.object.unmatched", "object", e.Name, "ra", e.RA, "dec", e.Dec, "x", x, "y", y)
			continue
		}
		if err := writeObjectRegions(regionsDir, obsID, e.Name, region.Point{X: x, Y: y}, match.Radius); err != nil {
			return st, err
		}
		st.Written++
	}
	g.logger.Info("object regions written", "obs_id", obsID, "written", st.Written, "not_found", st.NotFound)
	return st, nil
}

// nearest returns the first detection within tolerance of (x,y).
func nearest(dets []region.Spec, x, y float64) (region.Spec, bool) {
	for _, d := range dets {
		if d.Kind != region.KindCircle {
			continue
		}
		if math.Abs(d.Center.X-x) < constants.RegionMatchTolerance && math.Abs(d.Center.Y-y) < constants.RegionMatchTolerance {
			return d, true
		}
	}
	return region.Spec{}, false
}

func writeObjectRegions(dir, obsID, name string, center region.Point, r float64) error {
	src, err := region.NewCircle(region.FramePhysical, center, r)
	if err != nil {
		return err
	}
	bkg, err := region.NewAnnulus(region.FramePhysical, center, r, r+constants.BackgroundAnnulusPad)
	if err != nil {
		return err
	}
	srcPath := filepath.Join(dir, ObjectRegionFile(constants.SourcePrefix, name, obsID))
	bkgPath := filepath.Join(dir, ObjectRegionFile(constants.BackgroundPrefix, name, obsID))
	return errors.Join(
		region.WriteFile(srcPath, region.FramePhysical, []region.Spec{src}),
		region.WriteFile(bkgPath, region.FramePhysical, []region.Spec{bkg}),
	)
}

// ObjectRegionFile names a per-object region file, e.g. src_<name>_<obsid>.reg.
func ObjectRegionFile(prefix, name, obsID string) string {
	return fmt.Sprintf("%s_%s_%s%s", prefix, name, obsID, constants.RegionExt)
}

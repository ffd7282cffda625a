package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/artifact"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/tool"
)

// extract produces the source and background light curves of every object.
// Each (object, role) fails on its own.
func (o *Observation) extract(ctx context.Context, u *unit) error {
	for _, id := range region.SortedIDs(u.sets) {
		if err := ctx.Err(); err != nil {
			return err
		}
		set := u.sets[id]
		out := u.report.object(id)
		if out.Status(constants.RoleSource) == constants.ProductPending {
			o.extractSource(ctx, u, set, out)
		}
		if out.Status(constants.RoleBackground) == constants.ProductPending {
			o.extractBackground(ctx, u, set, out)
		}
	}
	return nil
}

func (o *Observation) extractSource(ctx context.Context, u *unit, set *region.Set, out *ObjectOutcome) {
	if set.Source == nil {
		out.skip(constants.RoleSource, common.MissingInput("no source region"))
		return
	}
	dst := filepath.Join(u.outDir, constants.LightCurveFile(u.obsID, set.ObjectID, constants.RoleSource))
	err := o.tool.ExtractLightCurve(ctx, tool.ExtractRequest{Invocation: u.inv, Region: *set.Source, Output: dst})
	if err != nil {
		u.logger.Error("pipeline.extract.failed", "object_id", set.ObjectID, "role", constants.RoleSource, "error", err)
		out.fail(constants.RoleSource, err)
		return
	}
	out.ok(constants.RoleSource, dst)
}

func (o *Observation) extractBackground(ctx context.Context, u *unit, set *region.Set, out *ObjectOutcome) {
	if set.Background == nil {
		out.skip(constants.RoleBackground, common.MissingInput("no background region"))
		return
	}
	if err := o.backgroundLightCurve(ctx, u, set, out); err != nil {
		u.logger.Error("pipeline.extract.failed", "object_id", set.ObjectID, "role", constants.RoleBackground, "error", err)
		out.fail(constants.RoleBackground, err)
	}
}

// backgroundLightCurve writes the object's background mask, stages it under
// its fixed name and runs the extraction against the staged copy.
func (o *Observation) backgroundLightCurve(ctx context.Context, u *unit, set *region.Set, out *ObjectOutcome) error {
	if u.totalMaskErr != nil {
		return u.totalMaskErr
	}
	bkgMask, err := o.masks.BuildBackgroundMask(u.totalMask, *set.Background, u.transform)
	if err != nil {
		return err
	}
	masksDir := filepath.Join(u.outDir, constants.MasksDirName)
	if err := os.MkdirAll(masksDir, 0o755); err != nil {
		return fmt.Errorf("create masks dir: %w", err)
	}
	maskPath := filepath.Join(masksDir, constants.MaskFileForRegion(filepath.Base(set.BackgroundFile)))
	if err := o.rasters.WriteRaster(maskPath, artifact.Raster{Grid: bkgMask}); err != nil {
		return err
	}

	stage, err := artifact.Stage(u.stageDir, "temp_mask")
	if err != nil {
		return err
	}
	defer o.release(u, stage)

	staged, err := stage.Copy(maskPath, constants.StagedBkgMask)
	if err != nil {
		return err
	}
	dst := filepath.Join(u.outDir, constants.LightCurveFile(u.obsID, set.ObjectID, constants.RoleBackground))
	req := tool.ExtractRequest{Invocation: u.inv, Region: *set.Background, Mask: staged, Output: dst}
	if err := o.tool.ExtractLightCurve(ctx, req); err != nil {
		return err
	}
	out.ok(constants.RoleBackground, dst)
	return nil
}

// correct runs the correction for objects whose source and background both
// succeeded, then drops rows with no exposure.
func (o *Observation) correct(ctx context.Context, u *unit) error {
	for _, id := range u.report.ObjectIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := u.report.Objects[id]
		if out.Status(constants.RoleSource) != constants.ProductSucceeded ||
			out.Status(constants.RoleBackground) != constants.ProductSucceeded {
			out.skip(constants.RoleCorrected, nil)
			continue
		}
		dst := filepath.Join(u.outDir, constants.LightCurveFile(u.obsID, id, constants.RoleCorrected))
		if err := o.correctObject(ctx, u, out, dst); err != nil {
			u.logger.Error("pipeline.correct.failed", "object_id", id, "error", err)
			out.fail(constants.RoleCorrected, err)
			continue
		}
		out.ok(constants.RoleCorrected, dst)
	}
	return nil
}

func (o *Observation) correctObject(ctx context.Context, u *unit, out *ObjectOutcome, dst string) error {
	stage, err := artifact.Stage(u.stageDir, "temp_lc")
	if err != nil {
		return err
	}
	defer o.release(u, stage)

	src, err := stage.Copy(out.Products[constants.RoleSource].Path, constants.StagedSourceLC)
	if err != nil {
		return err
	}
	bkg, err := stage.Copy(out.Products[constants.RoleBackground].Path, constants.StagedBkgLC)
	if err != nil {
		return err
	}
	raw := stage.Path(constants.StagedCorrected)
	req := tool.CorrectRequest{Invocation: u.inv, SourceLC: src, BackgroundLC: bkg, Output: raw}
	if err := o.tool.CorrectLightCurve(ctx, req); err != nil {
		return err
	}

	tbl, err := o.tables.ReadTable(raw)
	if err != nil {
		return err
	}
	kept, err := artifact.FilterValidRows(tbl, constants.ExposureFraction)
	if err != nil {
		return err
	}
	if dropped := len(tbl.Rows) - len(kept.Rows); dropped > 0 {
		u.logger.Debug("zero-exposure rows dropped", "object_id", out.ObjectID, "rows", dropped)
	}
	// only a filtered table may appear at dst
	if err := o.tables.WriteTable(dst, kept); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

func (o *Observation) release(u *unit, s *artifact.StagingDir) {
	if err := s.Release(); err != nil {
		u.logger.Warn("pipeline.cleanup.failed", "dir", s.Dir(), "error", err)
	}
}

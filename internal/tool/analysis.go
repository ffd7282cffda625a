package tool

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

const (
	evselectBin    = "evselect"
	epiclccorrBin  = "epiclccorr"
	calibrationEnv = "SAS_CCF"
)

// Invocation carries settings shared by every call for one observation.
type Invocation struct {
	EventList   string
	Calibration string // calibration index; empty leaves the tool default
}

// ExtractRequest asks for one binned light curve. Mask is set for background
// extractions only.
type ExtractRequest struct {
	Invocation
	Region region.Spec
	Mask   string
	Output string
}

// CorrectRequest asks for a background-subtracted, exposure-corrected curve.
type CorrectRequest struct {
	Invocation
	SourceLC     string
	BackgroundLC string
	Output       string
}

// AnalysisTool runs the external extraction and correction steps.
type AnalysisTool interface {
	ExtractLightCurve(ctx context.Context, req ExtractRequest) error
	CorrectLightCurve(ctx context.Context, req CorrectRequest) error
}

// SAS drives the evselect and epiclccorr tasks through a Runner.
type SAS struct {
	runner  Runner
	logger  *slog.Logger
	binDir  string
	profile SelectionProfile
}

var _ AnalysisTool = (*SAS)(nil)

func NewSAS(runner Runner, logger *slog.Logger, binDir string, profile SelectionProfile) *SAS {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &SAS{runner: runner, logger: logger, binDir: binDir, profile: profile}
}

func (s *SAS) ExtractLightCurve(ctx context.Context, req ExtractRequest) error {
	var expr string
	switch req.Region.Kind {
	case region.KindCircle:
		expr = s.profile.SourceExpression(req.Region)
	case region.KindAnnulus:
		if req.Mask == "" {
			return common.NewAppError("INVALID_REQUEST", "background extraction needs a mask", common.ErrInvalidInput)
		}
		expr = s.profile.BackgroundExpression(req.Mask, req.Region)
	default:
		return common.NewAppError("INVALID_REGION", fmt.Sprintf("unsupported region kind %q", req.Region.Kind), common.ErrInvalidRegion)
	}

	args := []string{
		"table=" + req.EventList,
		"energycolumn=PI",
		"withrateset=yes",
		"rateset=" + req.Output,
		"timebinsize=" + strconv.FormatFloat(s.profile.TimeBin, 'g', -1, 64),
		"maketimecolumn=yes",
		"makeratecolumn=no",
		"expression=" + expr,
	}
	return s.run(ctx, evselectBin, req.Invocation, args)
}

func (s *SAS) CorrectLightCurve(ctx context.Context, req CorrectRequest) error {
	args := []string{
		"srctslist=" + req.SourceLC,
		"eventlist=" + req.EventList,
		"outset=" + req.Output,
		"bkgtslist=" + req.BackgroundLC,
		"withbkgset=yes",
		"applyabsolutecorrections=yes",
	}
	return s.run(ctx, epiclccorrBin, req.Invocation, args)
}

func (s *SAS) run(ctx context.Context, name string, inv Invocation, args []string) error {
	cmd := Command{Name: name, Args: args}
	if s.binDir != "" {
		cmd.Name = filepath.Join(s.binDir, name)
	}
	if inv.Calibration != "" {
		cmd.Env = []string{calibrationEnv + "=" + inv.Calibration}
	}

	_, stderr, err := s.runner.Run(ctx, cmd)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			err = fmt.Errorf("%w: %s", err, truncate(msg, 512))
		}
		return common.ExternalTool(name, err)
	}
	return nil
}

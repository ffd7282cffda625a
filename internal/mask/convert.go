package mask

import (
	"fmt"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/coords"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

// SkipReason classifies why a region did not contribute to a mask.
type SkipReason string

const (
	SkipTransform SkipReason = "transform"
	SkipInvalid   SkipReason = "invalid"
)

// Skip describes one region left out of a mask.
type Skip struct {
	Index  int
	Reason SkipReason
	Err    error
}

// Conversion is the outcome of converting one region to pixel space: either a
// pixel-frame spec or a typed reason to skip it.
type Conversion struct {
	value  region.Spec
	reason SkipReason
	err    error
}

func converted(s region.Spec) Conversion { return Conversion{value: s} }

func skipped(reason SkipReason, err error) Conversion {
	return Conversion{reason: reason, err: err}
}

func (c Conversion) Ok() bool           { return c.err == nil }
func (c Conversion) Value() region.Spec { return c.value }
func (c Conversion) Err() error         { return c.err }
func (c Conversion) Reason() SkipReason { return c.reason }

func (c Conversion) Skip(index int) Skip {
	return Skip{Index: index, Reason: c.reason, Err: c.err}
}

// ToPixel converts a physical or sky region to pixel coordinates. Sky regions
// carry their radius in arcseconds.
func ToPixel(s region.Spec, tr coords.Transformer) Conversion {
	if err := s.Validate(); err != nil {
		return skipped(SkipInvalid, err)
	}
	if tr == nil {
		return skipped(SkipTransform, common.NewAppError("TRANSFORM", "no transformer", common.ErrTransform))
	}

	x, y := s.Center.X, s.Center.Y
	radii := []float64{s.Radius}
	if s.Kind == region.KindAnnulus {
		radii = []float64{s.InnerRadius, s.OuterRadius}
	}

	if s.Frame == region.FrameSky {
		var px, py float64
		for i, r := range radii {
			cx, cy, cr, err := tr.SkyToPhysical(s.Center.X, s.Center.Y, r)
			if err != nil {
				return skipped(SkipTransform, wrapTransform(err))
			}
			px, py, radii[i] = cx, cy, cr
		}
		x, y = px, py
	}

	var cx, cy float64
	for i, r := range radii {
		px, py, pr, err := tr.PhysicalToPixel(x, y, r)
		if err != nil {
			return skipped(SkipTransform, wrapTransform(err))
		}
		cx, cy, radii[i] = px, py, pr
	}

	out := s
	out.Center = region.Point{X: cx, Y: cy}
	if s.Kind == region.KindAnnulus {
		out.InnerRadius, out.OuterRadius = radii[0], radii[1]
	} else {
		out.Radius = radii[0]
	}
	if err := out.Validate(); err != nil {
		return skipped(SkipInvalid, err)
	}
	return converted(out)
}

func wrapTransform(err error) error {
	return fmt.Errorf("%w: %v", common.ErrTransform, err)
}

package mask

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/coords"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

// Engine rasterizes regions onto image grids.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// BuildExclusionMask accumulates the coverage of every region on a zeroed grid
// of the given shape and marks pixels with any coverage as excluded (1).
// Regions whose conversion fails are skipped and returned; the rest still count.
func (e *Engine) BuildExclusionMask(ctx context.Context, shape Shape, regions []region.Spec, tr coords.Transformer) (Grid, []Skip, error) {
	if !shape.Valid() {
		return Grid{}, nil, common.MissingInput("base raster has invalid shape %s", shape)
	}
	acc := NewGrid(shape)
	var skips []Skip
	for i, spec := range regions {
		if err := ctx.Err(); err != nil {
			return Grid{}, skips, err
		}
		res := ToPixel(spec, tr)
		if !res.Ok() {
			skip := res.Skip(i)
			e.logger.Warn("mask.region.skipped", "index", i, "region", spec.String(), "reason", skip.Reason, "error", skip.Err)
			skips = append(skips, skip)
			continue
		}
		accumulate(acc, res.Value())
	}

	out := NewGrid(shape)
	for i, v := range acc.Data {
		if normalize(v) > 0 {
			out.Data[i] = 1
		}
	}
	e.logger.Debug("exclusion mask built", "shape", shape.String(), "regions", len(regions),
		"skipped", len(skips), "excluded_pixels", out.Count())
	return out, skips, nil
}

// ApplyExclusion returns a copy of image with every excluded pixel set to 0.
// Applying the same mask again leaves the result unchanged.
func ApplyExclusion(image, excl Grid) (Grid, error) {
	if !image.SameShape(excl) {
		return Grid{}, fmt.Errorf("mask shape %s does not match image %s", excl.Shape, image.Shape)
	}
	out := image.Clone()
	for i, m := range excl.Data {
		if m > 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

// BuildAnnulusCrop keeps base values whose pixel centre lies in the band
// rInner < d <= rOuter around center (pixel coordinates) and zeroes the rest.
func BuildAnnulusCrop(base Grid, center region.Point, rInner, rOuter float64) Grid {
	out := NewGrid(base.Shape)
	rIn2, rOut2 := rInner*rInner, rOuter*rOuter
	for row := 0; row < base.Rows; row++ {
		dy := float64(row) - center.Y
		for col := 0; col < base.Cols; col++ {
			dx := float64(col) - center.X
			d2 := dx*dx + dy*dy
			if d2 > rIn2 && d2 <= rOut2 {
				out.set(col, row, normalize(base.At(col, row)))
			}
		}
	}
	return out
}

// BuildBackgroundMask converts an annulus region to pixel space and crops base to it.
func (e *Engine) BuildBackgroundMask(base Grid, annulus region.Spec, tr coords.Transformer) (Grid, error) {
	if !base.Shape.Valid() {
		return Grid{}, common.MissingInput("base mask is empty")
	}
	if annulus.Kind != region.KindAnnulus {
		return Grid{}, common.NewAppError("INVALID_REGION", "background region must be an annulus", common.ErrInvalidRegion)
	}
	res := ToPixel(annulus, tr)
	if !res.Ok() {
		return Grid{}, res.Err()
	}
	px := res.Value()
	out := BuildAnnulusCrop(base, px.Center, px.InnerRadius, px.OuterRadius)
	e.logger.Debug("background mask built", "center_x", px.Center.X, "center_y", px.Center.Y,
		"r_in", px.InnerRadius, "r_out", px.OuterRadius, "kept_pixels", out.Count())
	return out, nil
}

// accumulate adds the exact coverage of a pixel-space region to acc.
// Only the bounding box clipped to the grid is visited.
func accumulate(acc Grid, s region.Spec) {
	ext := s.Extent()
	// clip in float space; a box wholly off the grid contributes nothing
	x0, x1 := s.Center.X-ext-0.5, s.Center.X+ext+0.5
	y0, y1 := s.Center.Y-ext-0.5, s.Center.Y+ext+0.5
	if !(x1 >= 0 && x0 <= float64(acc.Cols-1) && y1 >= 0 && y0 <= float64(acc.Rows-1)) {
		return
	}
	c0 := int(math.Max(0, math.Floor(x0)))
	c1 := int(math.Min(float64(acc.Cols-1), math.Ceil(x1)))
	r0 := int(math.Max(0, math.Floor(y0)))
	r1 := int(math.Min(float64(acc.Rows-1), math.Ceil(y1)))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if f := coverage(s, col, row); f > 0 {
				acc.set(col, row, acc.At(col, row)+f)
			}
		}
	}
}

// coverage is the area of pixel (col,row) inside s. Any pixel the region
// overlaps with positive area gets a positive value, even when rounding
// drives the computed area to zero.
func coverage(s region.Spec, col, row int) float64 {
	// pixel square relative to the region centre
	x0, x1 := float64(col)-0.5-s.Center.X, float64(col)+0.5-s.Center.X
	y0, y1 := float64(row)-0.5-s.Center.Y, float64(row)+0.5-s.Center.Y

	near := nearest(x0, x1, y0, y1)
	var area float64
	if s.Kind == region.KindAnnulus {
		if near >= s.OuterRadius || farthest(x0, x1, y0, y1) <= s.InnerRadius {
			return 0
		}
		area = diskBoxArea(x0, x1, y0, y1, s.OuterRadius) - diskBoxArea(x0, x1, y0, y1, s.InnerRadius)
	} else {
		if near >= s.Radius {
			return 0
		}
		area = diskBoxArea(x0, x1, y0, y1, s.Radius)
	}
	if area <= 0 || math.IsNaN(area) {
		return math.SmallestNonzeroFloat64
	}
	return math.Min(area, 1)
}

// nearest and farthest are the distances from the origin to the closest and
// farthest points of the box [x0,x1]x[y0,y1].
func nearest(x0, x1, y0, y1 float64) float64 {
	return math.Hypot(gap(x0, x1), gap(y0, y1))
}

func farthest(x0, x1, y0, y1 float64) float64 {
	return math.Hypot(math.Max(math.Abs(x0), math.Abs(x1)), math.Max(math.Abs(y0), math.Abs(y1)))
}

func gap(lo, hi float64) float64 {
	switch {
	case lo > 0:
		return lo
	case hi < 0:
		return -hi
	default:
		return 0
	}
}

// diskBoxArea is the area of the disk of radius r at the origin inside the
// box [x0,x1]x[y0,y1].
func diskBoxArea(x0, x1, y0, y1, r float64) float64 {
	if r <= 0 {
		return 0
	}
	if y0 < 0 {
		if y1 <= 0 {
			return diskBoxArea(x0, x1, -y1, -y0, r)
		}
		return capArea(x0, x1, 0, r) - capArea(x0, x1, y1, r) + capArea(x0, x1, 0, r) - capArea(x0, x1, -y0, r)
	}
	return capArea(x0, x1, y0, r) - capArea(x0, x1, y1, r)
}

// capArea is the area of the disk inside the strip x0 <= x <= x1, y >= h,
// for h >= 0.
func capArea(x0, x1, h, r float64) float64 {
	if h >= r {
		return 0
	}
	half := math.Sqrt(r*r - h*h)
	a := math.Max(-half, math.Min(half, x0))
	b := math.Max(-half, math.Min(half, x1))
	return capPrimitive(b, h, r) - capPrimitive(a, h, r)
}

// capPrimitive integrates sqrt(r^2-x^2) - h from 0 to x, |x| <= r.
func capPrimitive(x, h, r float64) float64 {
	t := math.Max(-1, math.Min(1, x/r))
	return 0.5*(x*math.Sqrt(math.Max(0, r*r-x*x))+r*r*math.Asin(t)) - h*x
}

package coords

import (
	"fmt"
	"math"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Transformer converts between sky, physical and pixel coordinates. Radii are
// scaled alongside positions.
type Transformer interface {
	PhysicalToPixel(x, y, r float64) (px, py, pr float64, err error)
	PixelToPhysical(px, py, pr float64) (x, y, r float64, err error)
	SkyToPhysical(ra, dec, rArcsec float64) (x, y, r float64, err error)
}

// Linear maps physical to pixel coordinates as pixel = Scale*physical + Offset.
// It mirrors the LTM1_1/LTV1/LTV2 image keywords. Pixel coordinates are 0-based.
type Linear struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Tangent is a gnomonic projection from sky (degrees) to physical coordinates.
type Tangent struct {
	RA0, Dec0  float64 // reference sky position, degrees
	X0, Y0     float64 // physical coordinates of the reference position
	DegPerUnit float64 // physical pixel size in degrees
}

// Transform combines the sky and pixel mappings of one image. Sky may be nil
// when the image carries no sky reference; sky conversions then fail.
type Transform struct {
	Pixel Linear
	Sky   *Tangent
}

var _ Transformer = (*Transform)(nil)

func (t *Transform) PhysicalToPixel(x, y, r float64) (float64, float64, float64, error) {
	if err := t.Pixel.check(); err != nil {
		return 0, 0, 0, err
	}
	if !finite(x, y, r) {
		return 0, 0, 0, transformErr("non-finite physical input (%v,%v,%v)", x, y, r)
	}
	s := t.Pixel.Scale
	return s*x + t.Pixel.OffsetX, s*y + t.Pixel.OffsetY, math.Abs(s) * r, nil
}

func (t *Transform) PixelToPhysical(px, py, pr float64) (float64, float64, float64, error) {
	if err := t.Pixel.check(); err != nil {
		return 0, 0, 0, err
	}
	if !finite(px, py, pr) {
		return 0, 0, 0, transformErr("non-finite pixel input (%v,%v,%v)", px, py, pr)
	}
	s := t.Pixel.Scale
	return (px - t.Pixel.OffsetX) / s, (py - t.Pixel.OffsetY) / s, pr / math.Abs(s), nil
}

func (t *Transform) SkyToPhysical(ra, dec, rArcsec float64) (float64, float64, float64, error) {
	if t.Sky == nil {
		return 0, 0, 0, transformErr("image has no sky reference")
	}
	return t.Sky.project(ra, dec, rArcsec)
}

func (l Linear) check() error {
	if l.Scale == 0 || !finite(l.Scale, l.OffsetX, l.OffsetY) {
		return transformErr("degenerate physical->pixel mapping %+v", l)
	}
	return nil
}

func (tp *Tangent) project(ra, dec, rArcsec float64) (float64, float64, float64, error) {
	if !(tp.DegPerUnit > 0) {
		return 0, 0, 0, transformErr("sky pixel size must be > 0, got %v", tp.DegPerUnit)
	}
	if !finite(ra, dec, rArcsec) || dec < -90 || dec > 90 {
		return 0, 0, 0, transformErr("invalid sky position (%v,%v)", ra, dec)
	}
	a, d := rad(ra), rad(dec)
	a0, d0 := rad(tp.RA0), rad(tp.Dec0)
	cosc := math.Sin(d0)*math.Sin(d) + math.Cos(d0)*math.Cos(d)*math.Cos(a-a0)
	if cosc <= 0 {
		return 0, 0, 0, transformErr("position (%v,%v) is on the far side of the projection", ra, dec)
	}
	xi := math.Cos(d) * math.Sin(a-a0) / cosc
	eta := (math.Cos(d0)*math.Sin(d) - math.Sin(d0)*math.Cos(d)*math.Cos(a-a0)) / cosc

	// RA grows towards decreasing physical X.
	x := tp.X0 - deg(xi)/tp.DegPerUnit
	y := tp.Y0 + deg(eta)/tp.DegPerUnit
	r := rArcsec / 3600 / tp.DegPerUnit
	return x, y, r, nil
}

func transformErr(format string, args ...any) error {
	return common.NewAppError("TRANSFORM", fmt.Sprintf(format, args...), common.ErrTransform)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

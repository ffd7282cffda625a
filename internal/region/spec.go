package region

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Kind is the geometric shape of a region.
type Kind string

const (
	KindCircle  Kind = "circle"
	KindAnnulus Kind = "annulus"
)

// Frame is the coordinate frame region parameters are expressed in.
type Frame string

const (
	FramePhysical Frame = "physical"
	FrameSky      Frame = "sky"
)

// ParseFrame recognises a frame declaration line.
func ParseFrame(s string) (Frame, bool) {
	switch Frame(strings.ToLower(strings.TrimSpace(s))) {
	case FramePhysical:
		return FramePhysical, true
	case FrameSky:
		return FrameSky, true
	default:
		return "", false
	}
}

// Point is a 2D position in whatever frame the owning Spec declares.
type Point struct {
	X, Y float64
}

// Spec is a circle or annulus. Build it through NewCircle or NewAnnulus.
type Spec struct {
	Kind        Kind
	Frame       Frame
	Center      Point
	Radius      float64 // circle only
	InnerRadius float64 // annulus only
	OuterRadius float64 // annulus only
}

// NewCircle returns a circle region or ErrInvalidRegion when radius is not positive.
func NewCircle(frame Frame, center Point, radius float64) (Spec, error) {
	s := Spec{Kind: KindCircle, Frame: frame, Center: center, Radius: radius}
	return s, s.Validate()
}

// NewAnnulus returns an annulus region or ErrInvalidRegion unless 0 < inner < outer.
func NewAnnulus(frame Frame, center Point, inner, outer float64) (Spec, error) {
	s := Spec{Kind: KindAnnulus, Frame: frame, Center: center, InnerRadius: inner, OuterRadius: outer}
	return s, s.Validate()
}

// Validate checks the radius invariants for s.Kind.
func (s Spec) Validate() error {
	if !finite(s.Center.X) || !finite(s.Center.Y) {
		return invalid("center must be finite, got (%v,%v)", s.Center.X, s.Center.Y)
	}
	switch s.Kind {
	case KindCircle:
		if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
			return invalid("circle radius must be > 0, got %v", s.Radius)
		}
	case KindAnnulus:
		if !(s.InnerRadius > 0) || !(s.OuterRadius > 0) || math.IsInf(s.OuterRadius, 0) {
			return invalid("annulus radii must be > 0, got %v,%v", s.InnerRadius, s.OuterRadius)
		}
		if !(s.InnerRadius < s.OuterRadius) {
			return invalid("annulus inner radius %v must be < outer radius %v", s.InnerRadius, s.OuterRadius)
		}
	default:
		return invalid("unknown region kind %q", s.Kind)
	}
	return nil
}

// Params returns the shape parameters in region-file order.
func (s Spec) Params() []float64 {
	if s.Kind == KindAnnulus {
		return []float64{s.Center.X, s.Center.Y, s.InnerRadius, s.OuterRadius}
	}
	return []float64{s.Center.X, s.Center.Y, s.Radius}
}

// Extent is the radius beyond which the region covers nothing.
func (s Spec) Extent() float64 {
	if s.Kind == KindAnnulus {
		return s.OuterRadius
	}
	return s.Radius
}

// String renders the shape line, e.g. "circle(1,2,3)".
func (s Spec) String() string {
	params := s.Params()
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, strings.Join(parts, ","))
}

func invalid(format string, args ...any) error {
	return common.NewAppError("INVALID_REGION", fmt.Sprintf(format, args...), common.ErrInvalidRegion)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

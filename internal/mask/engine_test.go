package mask

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/coords"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/region"
)

var identity = &coords.Transform{Pixel: coords.Linear{Scale: 1}}

func circle(t *testing.T, x, y, r float64) region.Spec {
	t.Helper()
	s, err := region.NewCircle(region.FramePhysical, region.Point{X: x, Y: y}, r)
	require.NoError(t, err)
	return s
}

func excluded(t *testing.T, shape Shape, regions ...region.Spec) Grid {
	t.Helper()
	g, skips, err := NewEngine(nil).BuildExclusionMask(context.Background(), shape, regions, identity)
	require.NoError(t, err)
	require.Empty(t, skips)
	return g
}

func TestExclusionMask_DisjointCirclesAdd(t *testing.T) {
	shape := Shape{Rows: 50, Cols: 50}
	a := circle(t, 10, 10, 4)
	b := circle(t, 35, 35, 5)

	na := excluded(t, shape, a).Count()
	nb := excluded(t, shape, b).Count()
	both := excluded(t, shape, a, b).Count()

	assert.Greater(t, na, 0)
	assert.Greater(t, nb, 0)
	assert.Equal(t, na+nb, both)
}

func TestExclusionMask_OverlapNotDoubleCounted(t *testing.T) {
	shape := Shape{Rows: 40, Cols: 40}
	a := circle(t, 20, 20, 6)
	b := circle(t, 24, 20, 6)

	na := excluded(t, shape, a).Count()
	nb := excluded(t, shape, b).Count()
	g := excluded(t, shape, a, b)

	assert.Less(t, g.Count(), na+nb)
	assert.GreaterOrEqual(t, g.Count(), na)
	for _, v := range g.Data {
		assert.True(t, v == 0 || v == 1, "mask values are binary, got %v", v)
	}
}

func TestExclusionMask_OutOfBoundsContributesNothingOutside(t *testing.T) {
	shape := Shape{Rows: 10, Cols: 10}

	g := excluded(t, shape, circle(t, 0, 0, 3))
	assert.Greater(t, g.Count(), 0)
	assert.Equal(t, 1.0, g.At(0, 0))
	assert.Equal(t, 0.0, g.At(9, 9))

	assert.Equal(t, 0, excluded(t, shape, circle(t, -100, -100, 5)).Count())
}

func TestExclusionMask_SubPixelCircleExcludesItsPixel(t *testing.T) {
	g := excluded(t, Shape{Rows: 5, Cols: 5}, circle(t, 2.1, 2.1, 0.05))
	assert.Equal(t, 1, g.Count())
	assert.Equal(t, 1.0, g.At(2, 2))
}

func TestExclusionMask_SliverOverlapIsExcluded(t *testing.T) {
	g := excluded(t, Shape{Rows: 5, Cols: 5}, circle(t, 0, 0, 0.58))
	assert.Equal(t, 1.0, g.At(0, 0))
	assert.Equal(t, 1.0, g.At(1, 0), "circle reaches x=0.58 past the pixel edge at 0.5")
	assert.Equal(t, 1.0, g.At(0, 1))
	assert.Equal(t, 0.0, g.At(1, 1), "corner (0.5,0.5) is 0.707 away")
}

func TestExclusionMask_FarOffGridReturns(t *testing.T) {
	shape := Shape{Rows: 5, Cols: 5}
	done := make(chan Grid, 1)
	go func() {
		g, _, _ := NewEngine(nil).BuildExclusionMask(context.Background(), shape,
			[]region.Spec{circle(t, 1e20, 2, 3), circle(t, 2, -1e20, 3), circle(t, -1e19, -1e19, 1)}, identity)
		done <- g
	}()
	select {
	case g := <-done:
		assert.Equal(t, 0, g.Count())
	case <-time.After(5 * time.Second):
		t.Fatal("off-grid regions must not stall mask building")
	}
}

func TestCoverage_ExactArea(t *testing.T) {
	// a circle well inside the grid spreads exactly pi*r^2 over its pixels
	for _, tc := range []struct{ x, y, r float64 }{{10, 10, 3}, {10.3, 9.7, 2.25}, {9.5, 9.5, 0.4}} {
		s := circle(t, tc.x, tc.y, tc.r)
		sum := 0.0
		for row := 0; row < 20; row++ {
			for col := 0; col < 20; col++ {
				sum += coverage(s, col, row)
			}
		}
		assert.InDelta(t, math.Pi*tc.r*tc.r, sum, 1e-9, "%+v", tc)
	}

	assert.InDelta(t, 1.0, coverage(circle(t, 5, 5, 10), 5, 5), 1e-12)

	ann, err := region.NewAnnulus(region.FramePhysical, region.Point{X: 10, Y: 10}, 2, 4)
	require.NoError(t, err)
	sum := 0.0
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			sum += coverage(ann, col, row)
		}
	}
	assert.InDelta(t, math.Pi*(16-4), sum, 1e-9)
	assert.Equal(t, 0.0, coverage(ann, 10, 10), "pixel inside the hole")
}

type failingTransformer struct {
	*coords.Transform
	badX float64
}

func (f failingTransformer) PhysicalToPixel(x, y, r float64) (float64, float64, float64, error) {
	if x == f.badX {
		return 0, 0, 0, errors.New("off detector")
	}
	return f.Transform.PhysicalToPixel(x, y, r)
}

func TestExclusionMask_SkipsRegionsThatFailToConvert(t *testing.T) {
	shape := Shape{Rows: 30, Cols: 30}
	good := circle(t, 20, 20, 3)
	bad := circle(t, 5, 5, 3)
	tr := failingTransformer{Transform: identity, badX: 5}

	g, skips, err := NewEngine(nil).BuildExclusionMask(context.Background(), shape, []region.Spec{bad, good}, tr)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, 0, skips[0].Index)
	assert.Equal(t, SkipTransform, skips[0].Reason)
	assert.ErrorIs(t, skips[0].Err, common.ErrTransform)

	assert.Equal(t, excluded(t, shape, good).Count(), g.Count())
	assert.Equal(t, 0.0, g.At(5, 5))
}

func TestExclusionMask_InvalidShape(t *testing.T) {
	_, _, err := NewEngine(nil).BuildExclusionMask(context.Background(), Shape{}, nil, identity)
	assert.ErrorIs(t, err, common.ErrMissingInput)
}

func TestApplyExclusion_Idempotent(t *testing.T) {
	shape := Shape{Rows: 20, Cols: 20}
	image := NewGrid(shape)
	for i := range image.Data {
		image.Data[i] = float64(i%7) + 1
	}
	m := excluded(t, shape, circle(t, 8, 8, 4), circle(t, 15, 3, 2))

	once, err := ApplyExclusion(image, m)
	require.NoError(t, err)
	twice, err := ApplyExclusion(once, m)
	require.NoError(t, err)

	assert.Equal(t, once.Data, twice.Data)
	assert.Equal(t, 0.0, once.At(8, 8))
	assert.Equal(t, image.At(19, 19), once.At(19, 19))
	assert.NotEqual(t, 0.0, image.At(8, 8), "input is not modified")

	_, err = ApplyExclusion(image, NewGrid(Shape{Rows: 1, Cols: 1}))
	assert.Error(t, err)
}

func TestAnnulusCrop_BoundaryLaw(t *testing.T) {
	shape := Shape{Rows: 21, Cols: 21}
	base := NewGrid(shape)
	for i := range base.Data {
		base.Data[i] = 7
	}
	center := region.Point{X: 10, Y: 10}
	rIn, rOut := 3.0, 5.0

	out := BuildAnnulusCrop(base, center, rIn, rOut)
	require.Equal(t, base.Shape, out.Shape)

	for row := 0; row < shape.Rows; row++ {
		for col := 0; col < shape.Cols; col++ {
			dx, dy := float64(col)-center.X, float64(row)-center.Y
			d2 := dx*dx + dy*dy
			want := 0.0
			if rIn*rIn < d2 && d2 <= rOut*rOut {
				want = 7
			}
			assert.Equal(t, want, out.At(col, row), "pixel (%d,%d) d2=%v", col, row, d2)
		}
	}

	assert.Equal(t, 0.0, out.At(13, 10), "inner boundary is exclusive")
	assert.Equal(t, 7.0, out.At(15, 10), "outer boundary is inclusive")
	assert.Equal(t, 7.0, out.At(13, 14), "d = 5 exactly via 3-4-5")
	assert.Equal(t, 0.0, out.At(10, 10))
}

func TestAnnulusCrop_KeepsBaseValuesAndNormalizesNaN(t *testing.T) {
	base := NewGrid(Shape{Rows: 5, Cols: 5})
	base.Data[2*5+4] = math.NaN() // (4,2), d=2
	base.Data[2*5+3] = 0.25       // (3,2), d=1

	out := BuildAnnulusCrop(base, region.Point{X: 2, Y: 2}, 0.5, 2)
	assert.Equal(t, 0.0, out.At(4, 2))
	assert.Equal(t, 0.25, out.At(3, 2))
}

func TestBuildBackgroundMask_ConvertsPhysicalAnnulus(t *testing.T) {
	tr := &coords.Transform{Pixel: coords.Linear{Scale: 0.5, OffsetX: 0, OffsetY: 0}}
	base := NewGrid(Shape{Rows: 30, Cols: 30})
	for i := range base.Data {
		base.Data[i] = 1
	}
	ann, err := region.NewAnnulus(region.FramePhysical, region.Point{X: 30, Y: 30}, 6, 20)
	require.NoError(t, err)

	got, err := NewEngine(nil).BuildBackgroundMask(base, ann, tr)
	require.NoError(t, err)
	want := BuildAnnulusCrop(base, region.Point{X: 15, Y: 15}, 3, 10)
	assert.Equal(t, want.Data, got.Data)

	_, err = NewEngine(nil).BuildBackgroundMask(base, circle(t, 1, 1, 1), tr)
	assert.ErrorIs(t, err, common.ErrInvalidRegion)

	_, err = NewEngine(nil).BuildBackgroundMask(Grid{}, ann, tr)
	assert.ErrorIs(t, err, common.ErrMissingInput)
}

func TestToPixel_SkyRegion(t *testing.T) {
	tr := coords.FromHeader(map[string]float64{
		coords.KeyScale: 0.025, coords.KeyOffsetX: -600, coords.KeyOffsetY: -600,
		coords.KeyRA0: 150, coords.KeyDec0: 2, coords.KeyX0: 25500, coords.KeyY0: 25500, coords.KeyDelta: 1.388889e-05,
	})
	s, err := region.NewCircle(region.FrameSky, region.Point{X: 150, Y: 2}, 20)
	require.NoError(t, err)

	res := ToPixel(s, tr)
	require.True(t, res.Ok(), "%v", res.Err())
	assert.InDelta(t, 37.5, res.Value().Center.X, 1e-6)
	assert.InDelta(t, 37.5, res.Value().Center.Y, 1e-6)
	assert.InDelta(t, 10.0, res.Value().Radius, 1e-3)
}

package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

func TestLinear_RoundTrip(t *testing.T) {
	tr := &Transform{Pixel: Linear{Scale: 0.025, OffsetX: -300, OffsetY: -310}}

	px, py, pr, err := tr.PhysicalToPixel(25000, 26000, 400)
	require.NoError(t, err)
	assert.InDelta(t, 325.0, px, 1e-9)
	assert.InDelta(t, 340.0, py, 1e-9)
	assert.InDelta(t, 10.0, pr, 1e-9)

	x, y, r, err := tr.PixelToPhysical(px, py, pr)
	require.NoError(t, err)
	assert.InDelta(t, 25000.0, x, 1e-6)
	assert.InDelta(t, 26000.0, y, 1e-6)
	assert.InDelta(t, 400.0, r, 1e-6)
}

func TestLinear_Degenerate(t *testing.T) {
	tr := &Transform{}
	_, _, _, err := tr.PhysicalToPixel(1, 1, 1)
	assert.ErrorIs(t, err, common.ErrTransform)
}

func TestTangent_ReferencePointAndScale(t *testing.T) {
	tr := FromHeader(map[string]float64{
		KeyScale: 1, KeyRA0: 150, KeyDec0: 2, KeyX0: 25500, KeyY0: 25500, KeyDelta: -1.388889e-05,
	})
	require.NotNil(t, tr.Sky)

	x, y, r, err := tr.SkyToPhysical(150, 2, 4)
	require.NoError(t, err)
	assert.InDelta(t, 25500.0, x, 1e-6)
	assert.InDelta(t, 25500.0, y, 1e-6)
	assert.InDelta(t, 80.0, r, 0.01) // 4 arcsec at 0.05 arcsec per unit

	// east (larger RA) is towards smaller X, north towards larger Y
	xe, _, _, err := tr.SkyToPhysical(150.01, 2, 0)
	require.NoError(t, err)
	assert.Less(t, xe, 25500.0)
	_, yn, _, err := tr.SkyToPhysical(150, 2.01, 0)
	require.NoError(t, err)
	assert.Greater(t, yn, 25500.0)
}

func TestSkyToPhysical_Failures(t *testing.T) {
	_, _, _, err := (&Transform{Pixel: Linear{Scale: 1}}).SkyToPhysical(1, 1, 1)
	assert.ErrorIs(t, err, common.ErrTransform)

	tr := FromHeader(map[string]float64{KeyRA0: 0, KeyDec0: 0, KeyX0: 0, KeyY0: 0, KeyDelta: 1e-5})
	_, _, _, err = tr.SkyToPhysical(180, 0, 1)
	assert.ErrorIs(t, err, common.ErrTransform)
}

package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
)

func TestParseCollection_PairsRoles(t *testing.T) {
	sets := ParseCollection([]string{"src_ABC_0001.reg", "bkg_ABC_0001.reg", "src_XYZ_0002.reg"})

	require.Len(t, sets, 2)
	abc := sets["ABC"]
	require.NotNil(t, abc)
	assert.Equal(t, "src_ABC_0001.reg", abc.SourceFile)
	assert.Equal(t, "bkg_ABC_0001.reg", abc.BackgroundFile)

	xyz := sets["XYZ"]
	require.NotNil(t, xyz)
	assert.Equal(t, "src_XYZ_0002.reg", xyz.SourceFile)
	assert.Empty(t, xyz.BackgroundFile)
}

func TestParseCollection_ObjectIDWithUnderscores(t *testing.T) {
	sets := ParseCollection([]string{"/data/regions/src_J0123+4567_extra_0201900101.reg"})
	require.Contains(t, sets, "J0123+4567_extra")
}

func TestParseCollection_LastWriteWinsAndIgnoresNoise(t *testing.T) {
	sets := ParseCollection([]string{
		"src_ABC_1.reg",
		"src_ABC_2.reg",
		"ds9_regions_0201900101.reg",
		"src_only.reg",
		"notes.txt",
	})
	require.Len(t, sets, 1)
	assert.Equal(t, "src_ABC_2.reg", sets["ABC"].SourceFile)
}

func TestPairer_LoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("src_ABC_0001.reg", "physical\ncircle(100,100,10) # color=white\n")
	write("bkg_ABC_0001.reg", "physical\nannulus(100,100,10,2490) # color=magenta\n")
	write("src_XYZ_0001.reg", "physical\nnot a region\n")
	write("readme.txt", "ignored")

	sets, err := NewPairer(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	abc := sets["ABC"]
	require.NotNil(t, abc.Source)
	require.NotNil(t, abc.Background)
	assert.Equal(t, 10.0, abc.Source.Radius)
	assert.Equal(t, 2490.0, abc.Background.OuterRadius)
	assert.Empty(t, abc.Problems)

	xyz := sets["XYZ"]
	assert.Nil(t, xyz.Source)
	assert.Contains(t, xyz.Problems, constants.RoleSource)
	assert.Equal(t, []string{"ABC", "XYZ"}, SortedIDs(sets))
}

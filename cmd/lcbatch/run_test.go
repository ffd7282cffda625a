package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitIDs([]string{"a, b", "", " c "}))
	assert.Nil(t, splitIDs(nil))
}

func TestObsIDsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qso.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"OBS_ID,RA,DEC,SDSS_NAME\n0112370101,150.1,2.2,J1\n0112370101,150.2,2.3,J2\n0200000101,10,-1,J3\n0300000101,11,-1,J4\n"), 0o644))

	root := newRootCmd(nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"obsids", "--catalog", path, "--max-obsids", "2"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "0112370101\n0200000101\n", out.String())
}

func TestRunCommand_NoObservationsIsSetupError(t *testing.T) {
	root := newRootCmd(nil)
	root.SetArgs([]string{"run", "--catalog", "", "--data-root", t.TempDir(), "--output-root", t.TempDir()})
	err := root.Execute()
	require.Error(t, err)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.code)
}

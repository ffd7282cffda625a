package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// FindBySuffix returns the file in dir whose name ends with suffix. With no
// match it fails with ErrMissingInput; with several it picks the first in
// lexical order and returns every candidate so the caller can warn.
func FindBySuffix(dir, suffix string) (string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, common.MissingInput("read %s: %v", dir, err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		matches = append(matches, filepath.Join(dir, e.Name()))
	}
	if len(matches) == 0 {
		return "", nil, common.MissingInput("no *%s in %s", suffix, dir)
	}
	sort.Strings(matches)
	return matches[0], matches, nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

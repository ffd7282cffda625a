package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// StagingDir is a uniquely named scratch directory owned by one caller.
// Release removes it; it is safe to call more than once.
type StagingDir struct {
	dir  string
	once sync.Once
	err  error
}

// Stage creates <parent>/<prefix>-<uuid>.
func Stage(parent, prefix string) (*StagingDir, error) {
	dir := filepath.Join(parent, fmt.Sprintf("%s-%s", prefix, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &StagingDir{dir: dir}, nil
}

func (s *StagingDir) Dir() string { return s.dir }

// Path joins name onto the staging dir.
func (s *StagingDir) Path(name string) string { return filepath.Join(s.dir, name) }

// Copy copies src into the staging dir under name and returns the new path.
func (s *StagingDir) Copy(src, name string) (string, error) {
	dst := s.Path(name)
	if err := CopyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *StagingDir) Release() error {
	s.once.Do(func() {
		s.err = os.RemoveAll(s.dir)
	})
	return s.err
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

package region

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Set groups the regions of one object. Either role may be absent.
type Set struct {
	ObjectID       string
	SourceFile     string
	BackgroundFile string
	Source         *Spec
	Background     *Spec

	// Problems holds per-role load failures; the role's spec stays nil.
	Problems map[constants.Role]error
}

// Empty reports whether neither role is present.
func (s *Set) Empty() bool {
	return s.SourceFile == "" && s.BackgroundFile == ""
}

// ObjectIDFromFilename splits "<role>_<object_id>_<suffix>" and returns the
// role and the object id (middle tokens re-joined with "_").
func ObjectIDFromFilename(name string) (constants.Role, string, bool) {
	tokens := strings.Split(filepath.Base(name), "_")
	if len(tokens) < 3 {
		return "", "", false
	}
	role, ok := constants.RoleFromPrefix(tokens[0])
	if !ok {
		return "", "", false
	}
	id := strings.Join(tokens[1:len(tokens)-1], "_")
	if id == "" {
		return "", "", false
	}
	return role, id, true
}

// ParseCollection pairs region filenames by object id. Files for the same
// (object, role) overwrite earlier ones in input order. Names that do not follow
// the convention are ignored.
func ParseCollection(filenames []string) map[string]*Set {
	out := make(map[string]*Set)
	for _, name := range filenames {
		role, id, ok := ObjectIDFromFilename(name)
		if !ok {
			continue
		}
		set, exists := out[id]
		if !exists {
			set = &Set{ObjectID: id}
			out[id] = set
		}
		switch role {
		case constants.RoleSource:
			set.SourceFile = name
		case constants.RoleBackground:
			set.BackgroundFile = name
		}
	}
	return out
}

// SortedIDs returns the object ids of sets in lexical order.
func SortedIDs(sets map[string]*Set) []string {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pairer reads a regions directory into per-object sets.
type Pairer struct {
	logger *slog.Logger
}

func NewPairer(logger *slog.Logger) *Pairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pairer{logger: logger}
}

// LoadDir lists dir, pairs src_/bkg_ files and parses each one. A role whose file
// cannot be read or holds no usable shape is left nil and recorded in Problems.
// Only a missing or unreadable directory is an error.
func (p *Pairer) LoadDir(dir string) (map[string]*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, common.MissingInput("regions dir %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, constants.SourcePrefix+"_") || strings.HasPrefix(n, constants.BackgroundPrefix+"_") {
			names = append(names, filepath.Join(dir, n))
		}
	}
	sort.Strings(names)

	sets := ParseCollection(names)
	for _, id := range SortedIDs(sets) {
		set := sets[id]
		if set.SourceFile != "" {
			spec, err := p.loadRole(set.SourceFile, KindCircle)
			if err != nil {
				set.problem(constants.RoleSource, err)
			} else {
				set.Source = &spec
			}
		}
		if set.BackgroundFile != "" {
			spec, err := p.loadRole(set.BackgroundFile, KindAnnulus)
			if err != nil {
				set.problem(constants.RoleBackground, err)
			} else {
				set.Background = &spec
			}
		}
		if len(set.Problems) > 0 {
			p.logger.Warn("region set incomplete", "object_id", id, "problems", fmt.Sprint(set.Problems))
		}
	}
	return sets, nil
}

func (p *Pairer) loadRole(path string, kind Kind) (Spec, error) {
	f, err := ParseFile(path)
	if err != nil {
		return Spec{}, err
	}
	for _, le := range f.Skipped {
		p.logger.Debug("region line skipped", "file", filepath.Base(path), "line", le.Line, "error", le.Err)
	}
	spec, ok := f.First(kind)
	if !ok {
		return Spec{}, common.MissingInput("no %s in %s", kind, filepath.Base(path))
	}
	return spec, nil
}

func (s *Set) problem(role constants.Role, err error) {
	if s.Problems == nil {
		s.Problems = make(map[constants.Role]error)
	}
	s.Problems[role] = err
}

package region

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

var reShape = regexp.MustCompile(`^\s*([A-Za-z]+)\s*\(([^()]*)\)\s*(#.*)?$`)

// LineError records a line that was skipped while parsing.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// File is the parsed content of one region file.
type File struct {
	Path    string
	Frame   Frame
	Specs   []Spec
	Skipped []LineError
}

// First returns the first spec of the given kind.
func (f File) First(kind Kind) (Spec, bool) {
	for _, s := range f.Specs {
		if s.Kind == kind {
			return s, true
		}
	}
	return Spec{}, false
}

// Parse reads region text. The first line declares the frame; when it does not,
// the frame defaults to physical and the line is treated as a shape line.
// Lines that do not match the grammar are skipped and reported in the second
// return value; only read failures produce an error.
func Parse(r io.Reader) (Frame, []Spec, []LineError, error) {
	frame := FramePhysical
	var specs []Spec
	var skipped []LineError

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if n == 1 {
			if f, ok := ParseFrame(line); ok {
				frame = f
				continue
			}
		}
		if line == "" {
			continue
		}
		spec, err := parseShape(frame, line)
		if err != nil {
			skipped = append(skipped, LineError{Line: n, Text: line, Err: err})
			continue
		}
		specs = append(specs, spec)
	}
	if err := sc.Err(); err != nil {
		return frame, specs, skipped, fmt.Errorf("read regions: %w", err)
	}
	return frame, specs, skipped, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(s string) (Frame, []Spec, []LineError) {
	frame, specs, skipped, _ := Parse(strings.NewReader(s))
	return frame, specs, skipped
}

// ParseFile opens and parses a region file.
func ParseFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{Path: path}, common.MissingInput("region file %s: %v", path, err)
	}
	defer fh.Close()

	frame, specs, skipped, err := Parse(fh)
	return File{Path: path, Frame: frame, Specs: specs, Skipped: skipped}, err
}

func parseShape(frame Frame, line string) (Spec, error) {
	m := reShape.FindStringSubmatch(line)
	if m == nil {
		return Spec{}, malformed("not a shape line")
	}
	kind := Kind(strings.ToLower(m[1]))
	var want int
	switch kind {
	case KindCircle:
		want = 3
	case KindAnnulus:
		want = 4
	default:
		return Spec{}, malformed("unsupported shape %q", m[1])
	}

	fields := strings.Split(m[2], ",")
	if len(fields) != want {
		return Spec{}, malformed("%s needs %d parameters, got %d", kind, want, len(fields))
	}
	vals := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Spec{}, malformed("parameter %d: %v", i+1, err)
		}
		vals[i] = v
	}

	center := Point{X: vals[0], Y: vals[1]}
	if kind == KindCircle {
		return NewCircle(frame, center, vals[2])
	}
	return NewAnnulus(frame, center, vals[2], vals[3])
}

func malformed(format string, args ...any) error {
	return common.NewAppError("MALFORMED_REGION", fmt.Sprintf(format, args...), common.ErrMalformedRegion)
}

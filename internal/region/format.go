package region

import (
	"os"
	"strings"
)

// Format serializes specs in the region grammar Parse accepts.
func Format(frame Frame, specs []Spec) string {
	var b strings.Builder
	b.WriteString(string(frame))
	b.WriteByte('\n')
	for _, s := range specs {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteFile writes specs to path, replacing any previous content.
func WriteFile(path string, frame Frame, specs []Spec) error {
	return os.WriteFile(path, []byte(Format(frame, specs)), 0o644)
}

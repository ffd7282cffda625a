package constants

import "strings"

// Role is the part an object's region plays in extraction.
type Role string

const (
	RoleSource     Role = "source"
	RoleBackground Role = "bkg"
	RoleCorrected  Role = "corrlc"
)

// filename prefixes used by region files
const (
	SourcePrefix     = "src"
	BackgroundPrefix = "bkg"
)

// RoleFromPrefix maps a region filename prefix token to its role.
func RoleFromPrefix(token string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case SourcePrefix:
		return RoleSource, true
	case BackgroundPrefix:
		return RoleBackground, true
	default:
		return "", false
	}
}

package version

import "fmt"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the full human-readable build identifier.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}

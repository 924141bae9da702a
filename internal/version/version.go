// Package version holds build-time version information for the alula binary.
// The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/alula-collections/alula-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/alula-collections/alula-go/internal/version.Commit=abc1234"
//
// Local builds fall back to "dev"/"unknown".
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String renders the version line printed by `alula version` and logged at
// server startup.
func String() string {
	return fmt.Sprintf("alula %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

package version

import "fmt"

// Set at build time with -ldflags "-X github.com/example/kanband/internal/version.Commit=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "kanband <version> (commit: <short>, built: <time>)".
func String() string {
	return fmt.Sprintf("kanband %s (commit: %s, built: %s)", Version, shortCommit(), BuildTime)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

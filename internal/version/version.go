// Package version holds build metadata set with -ldflags "-X".
package version

// Build metadata.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build metadata for the version command.
func String() string {
	return "dirsearch " + Version + " (commit " + Commit + ", built " + Date + ")"
}

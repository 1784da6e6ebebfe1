// Package buildinfo carries version metadata injected at link time via
// -ldflags "-X curbside/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Fields returns the metadata as alternating key/value pairs for slog.
func Fields() []any {
	return []any{"version", Version, "commit", Commit, "builtAt", BuiltAt}
}

package version

// Set at build time with -ldflags "-X MDMWatch/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Full returns a formatted version string.
func Full() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}

// UserAgent identifies the binary to the remote API.
func UserAgent() string {
	return "MDMWatch/" + Version
}

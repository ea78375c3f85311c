package version

// Overridden at build time via -ldflags "-X fsindex/internal/version.Version=...".
var Version = "0.3.0"

func String() string {
	return "fsindex " + Version
}

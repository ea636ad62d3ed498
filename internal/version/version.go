package version

// Version is the semantic version of this build. Overridden at release time via
// -ldflags "-X github.com/stencila/stencila/internal/version.Version=...".
var Version = "2.0.0-dev"

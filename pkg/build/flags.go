// SPDX-License-Identifier: MIT
//
// Package build holds build metadata embedded at compile time via
// linker flags: application name, build timestamp, Git commit, and
// semantic version. Development builds without ldflags fall back to
// "dev" placeholders.
package build

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "tuner",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies build information from the ldflags variables into
// the buildFlags struct. Must be called early in program startup. Flags
// left unset by the build keep their development defaults.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information. Call Initialize
// first so ldflags values are applied.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

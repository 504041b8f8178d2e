// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded at link time: the application
// name, build timestamp, Git commit and version. Development builds without
// ldflags fall back to defaults, for example:
//
//	go build -ldflags "-X voiceviz/pkg/build.buildName=voiceviz -X voiceviz/pkg/build.buildVersion=0.1.0 ..."
package build

import (
	"errors"
	"fmt"
)

// ErrMissingFlags is returned by Initialize when a build was linked without
// the full set of -X flags.
var ErrMissingFlags = errors.New("build flags missing")

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line shown by --version.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "voiceviz",
		Description: "Voice-reactive audio visualizer",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. On a missing flag it returns an error wrapping
// ErrMissingFlags and leaves the defaults in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("%w: BuildName is required", ErrMissingFlags)
	}
	if buildTime == "" {
		return fmt.Errorf("%w: BuildTime is required", ErrMissingFlags)
	}
	if buildCommit == "" {
		return fmt.Errorf("%w: BuildCommit is required", ErrMissingFlags)
	}
	if buildVersion == "" {
		return fmt.Errorf("%w: BuildVersion is required", ErrMissingFlags)
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

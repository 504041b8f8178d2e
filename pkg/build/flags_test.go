// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2026-10-14", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "voiceviz", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "voiceviz", "2026-10-14", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "voiceviz", "2026-10-14", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "voiceviz", "2026-10-14", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if !errors.Is(err, ErrMissingFlags) {
					t.Fatalf("Initialize() error = %v, want ErrMissingFlags", err)
				}
				if !strings.Contains(err.Error(), tt.wantErrMsg) {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				if *buildFlags != *defaultFlags() {
					t.Errorf("failed Initialize changed flags: %+v", buildFlags)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName {
				t.Errorf("buildFlags.Name = %v, want %v", buildFlags.Name, tt.buildName)
			}
			if buildFlags.Version != tt.buildVer {
				t.Errorf("buildFlags.Version = %v, want %v", buildFlags.Version, tt.buildVer)
			}
			if buildFlags.Description == "" {
				t.Error("description lost during Initialize")
			}
		})
	}
}

func TestGetBuildFlags(t *testing.T) {
	expected := ldFlags{
		Name:    "voiceviz",
		Time:    "2026-10-14",
		Commit:  "abcdef123",
		Version: "v1.0.0",
	}
	buildFlags = &expected

	flags := GetBuildFlags()
	if *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}
	if got := flags.String(); got != "v1.0.0 (commit abcdef123, built 2026-10-14)" {
		t.Errorf("String() = %q", got)
	}
}

// SPDX-License-Identifier: MIT
//
// Package build carries the metadata stamped into the binary with -ldflags:
//
//	go build -ldflags "-X scope/pkg/build.buildName=scope \
//	  -X scope/pkg/build.buildVersion=v0.3.0 ..."
//
// Development builds leave the variables empty and report "unknown".
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by the CLI.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

const unknown = "unknown"

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = &Info{
	Name:        "scope",
	Description: "Real-time audio scope with peak-hold, waveform and histogram views",
	Time:        unknown,
	Commit:      unknown,
	Version:     unknown,
}

// Initialize copies the ldflags variables into the build info. Every
// missing flag is reported; the ones that are set are still applied.
func Initialize() error {
	var errs []error
	apply := func(flag, val string, dst *string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}

	apply("BuildName", buildName, &buildFlags.Name)
	apply("BuildTime", buildTime, &buildFlags.Time)
	apply("BuildCommit", buildCommit, &buildFlags.Commit)
	apply("BuildVersion", buildVersion, &buildFlags.Version)

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}

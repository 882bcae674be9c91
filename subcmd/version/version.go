// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package version provides version subcommand.
package version

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/cipd/version"
	"go.chromium.org/luci/hardcoded/chromeinfra"
)

// Cmd returns the Command for the `version` subcommand.
func Cmd(ver string) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "version",
		ShortDesc: "prints the executable version",
		LongDesc:  "Prints the executable version and the CIPD package the executable was installed from (if it was installed via CIPD).",
		CommandRun: func() subcommands.CommandRun {
			return &versionRun{version: ver}
		},
	}
}

type versionRun struct {
	subcommands.CommandRunBase
	version string
}

func (c *versionRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n", a.GetName())
		return 1
	}
	ver, err := version.GetStartupVersion()
	if err != nil {
		// Note: this is some sort of catastrophic error. If the binary is not
		// installed via CIPD, err == nil && ver.InstanceID == "".
		fmt.Fprintf(a.GetErr(), "cannot determine CIPD package version: %s\n", err)
		return 1
	}
	buildInfo, _ := debug.ReadBuildInfo()
	printVersion(a.GetOut(), c.version, buildInfo, ver)
	return 0
}

// printVersion prints ver, go version and vcs settings in bi,
// and CIPD package in cv if the executable was installed via CIPD.
func printVersion(w io.Writer, ver string, bi *debug.BuildInfo, cv version.Info) {
	fmt.Fprintln(w, ver)
	if bi != nil {
		if bi.GoVersion != "" {
			fmt.Fprintf(w, "go\t%s\n", bi.GoVersion)
		}
		for _, s := range bi.Settings {
			if strings.HasPrefix(s.Key, "vcs.") {
				fmt.Fprintf(w, "build\t%s=%s\n", s.Key, s.Value)
			}
		}
	}
	if cv.InstanceID == "" {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "CIPD package name: %s\n", cv.PackageName)
	fmt.Fprintf(w, "CIPD instance ID:  %s\n", cv.InstanceID)
	fmt.Fprintf(w, "CIPD URL: %s/p/%s/+/%s\n", chromeinfra.CIPDServiceURL, cv.PackageName, cv.InstanceID)
}

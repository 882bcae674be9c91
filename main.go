// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Amalgam generates single-file unity headers from C/C++ header trees.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	log "github.com/golang/glog"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
	"go.chromium.org/infra/build/amalgam/subcmd/deps"
	"go.chromium.org/infra/build/amalgam/subcmd/header"
	"go.chromium.org/infra/build/amalgam/subcmd/help"
	"go.chromium.org/infra/build/amalgam/subcmd/version"
)

const amalgamVersion = "amalgam v0.1.0"

func main() {
	flag.Parse()
	os.Exit(amalgamMain(context.Background(), flag.Args()))
}

// getApplication returns the application. Commands run under ctx,
// so that they are canceled on interrupt.
func getApplication(ctx context.Context) *cli.Application {
	return &cli.Application{
		Name:  "amalgam",
		Title: "Amalgam generates unity headers from C/C++ header trees",
		Context: func(context.Context) context.Context {
			return clog.NewContext(ctx, clog.New(ctx))
		},
		Commands: []*subcommands.Command{
			header.Cmd(),
			deps.Cmd(),

			help.Cmd(),
			version.Cmd(amalgamVersion),
		},
	}
}

func amalgamMain(ctx context.Context, args []string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(cancel)()

	// Flush the log on exit to not lose any messages.
	defer log.Flush()

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	// Print build information to the log.
	buildinfo, ok := debug.ReadBuildInfo()
	if ok {
		log.Infof("main module: %s %s", moduleInfo(&buildinfo.Main), vcsInfo(buildinfo))
		if log.V(1) {
			for _, m := range buildinfo.Deps {
				log.Infof("deps module: %s", moduleInfo(m))
			}
			for _, bs := range buildinfo.Settings {
				log.Infof("build %s=%s", bs.Key, bs.Value)
			}
		}
	}

	return subcommands.Run(getApplication(ctx), args)
}

func moduleInfo(m *debug.Module) string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("path:%s version:%s sum:%s replace:%s", m.Path, m.Version, m.Sum, moduleInfo(m.Replace))
}

func vcsInfo(buildinfo *debug.BuildInfo) string {
	m := make(map[string]string)
	for _, bs := range buildinfo.Settings {
		if strings.HasPrefix(bs.Key, "vcs.") {
			m[bs.Key] = bs.Value
		}
	}
	return fmt.Sprintf("vcs[revision=%s time=%s modified=%s]", m["vcs.revision"], m["vcs.time"], m["vcs.modified"])
}

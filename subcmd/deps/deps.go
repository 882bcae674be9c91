// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package deps is deps subcommand for debugging include traversal.
package deps

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/amalgam/inliner"
	"go.chromium.org/infra/build/amalgam/osfs"
)

const usage = `print headers reachable from a root header

 $ amalgam deps -input <root.h> [-I <include dir>]

prints local headers in the order they are inlined,
followed by hoisted system includes.
`

// Cmd returns the Command for the `deps` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "deps <args>...",
		ShortDesc: "print headers reachable from a root header",
		LongDesc:  usage,
		Advanced:  true,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	input      string
	includeDir string
	maxDepth   int
}

func (c *run) init() {
	c.Flags.StringVar(&c.input, "input", "", "the root header to load")
	c.Flags.StringVar(&c.includeDir, "I", ".", `directory to resolve #include "..." against`)
	c.Flags.IntVar(&c.maxDepth, "max_depth", inliner.DefaultMaxDepth, "max depth of include chain")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx, a.GetOut(), args)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("position arguments not expected: %q: %w", args, flag.ErrHelp)
	}
	if c.input == "" {
		return fmt.Errorf("missing -input: %w", flag.ErrHelp)
	}
	ofs := osfs.New("deps")
	r, err := inliner.Inline(ctx, c.input, inliner.Options{
		IncludeDir: c.includeDir,
		MaxDepth:   c.maxDepth,
		FS:         ofs,
	})
	if err != nil {
		return err
	}
	for _, f := range r.Files {
		fmt.Fprintln(w, f)
	}
	for _, inc := range r.SystemIncludes {
		fmt.Fprintln(w, inc)
	}
	log.Infof("%d headers, %d system includes: %s", len(r.Files), len(r.SystemIncludes), ofs.Stats())
	return nil
}

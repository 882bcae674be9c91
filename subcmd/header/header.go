// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package header is header subcommand to generate a unity header.
package header

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/amalgam/config"
	"go.chromium.org/infra/build/amalgam/inliner"
	"go.chromium.org/infra/build/amalgam/o11y/clog"
	"go.chromium.org/infra/build/amalgam/o11y/trace"
	"go.chromium.org/infra/build/amalgam/osfs"
	"go.chromium.org/infra/build/amalgam/toolsupport/makeutil"
)

const usage = `generate a unity header.

 $ amalgam header -input <root.h> -output <unity.h> \
     -header_guard <GUARD> -notice <notice file> [-I <include dir>]

 $ amalgam header -config amalgam.star [-target <name>]

Inlines local includes ("foo.h") of <root.h> recursively, at most once each,
strips comments, blank lines and header guards of the inlined headers,
hoists system includes (<foo.h>) to the top and wraps the result in
<GUARD> under the notice.

All includes of a header must precede its code.
On error, an existing <unity.h> is left untouched.
`

// Cmd returns the Command for the `header` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "header <args>...",
		ShortDesc: "generate a unity header",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	input       string
	output      string
	headerGuard string
	notice      string
	noticeText  string
	includeDir  string
	maxDepth    int
	depfile     string

	check     bool
	traceJSON string

	configFile  string
	configFlags flagMap
	target      string
}

func (c *run) init() {
	c.Flags.StringVar(&c.input, "input", "", "the root header to load")
	c.Flags.StringVar(&c.output, "output", "", "where to save the result")
	c.Flags.StringVar(&c.headerGuard, "header_guard", "", "header guard of the result")
	c.Flags.StringVar(&c.notice, "notice", "", "copyright notice file")
	c.Flags.StringVar(&c.noticeText, "notice_text", "", "copyright notice. alternative to -notice")
	c.Flags.StringVar(&c.includeDir, "I", ".", `directory to resolve #include "..." against`)
	c.Flags.IntVar(&c.maxDepth, "max_depth", inliner.DefaultMaxDepth, "max depth of include chain")
	c.Flags.StringVar(&c.depfile, "depfile", "", "write make style depfile of the result")
	c.Flags.BoolVar(&c.check, "check", false, "don't write the result. fail if the result is missing or stale")
	c.Flags.StringVar(&c.traceJSON, "trace", "", "write trace json of the run")
	c.Flags.StringVar(&c.configFile, "config", "", "starlark config file of targets. other target flags are ignored")
	c.configFlags = make(flagMap)
	c.Flags.Var(c.configFlags, "config_flag", "key=value passed to the config as ctx.flags. repeatable")
	c.Flags.StringVar(&c.target, "target", "", "target name in -config to generate. default all targets")
}

// errStale is returned in -check mode when the result differs from the output file.
var errStale = errors.New("stale output")

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx, args)
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

func (c *run) run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("position arguments not expected: %q: %w", args, flag.ErrHelp)
	}
	targets, err := c.targets(ctx)
	if err != nil {
		return err
	}
	tc := trace.New(ctx, "")
	ctx = trace.NewContext(ctx, tc)
	ctx = clog.NewSpan(ctx, tc.ID(), "", nil)
	if c.traceJSON != "" {
		defer func() {
			terr := writeTrace(ctx, tc, c.traceJSON)
			if terr != nil {
				log.Warnf("failed to write trace %s: %v", c.traceJSON, terr)
			}
		}()
	}

	ofs := osfs.New("amalgam")
	started := time.Now()
	for _, t := range targets {
		err := generate(ctx, ofs, t, c.check)
		if err != nil {
			return err
		}
	}
	log.Infof("%d targets done in %s: %s", len(targets), time.Since(started), ofs.Stats())
	return nil
}

// targets returns targets to generate, from -config or from flags.
func (c *run) targets(ctx context.Context) ([]config.Target, error) {
	if c.configFile == "" {
		t := config.Target{
			Name:        c.output,
			Input:       c.input,
			Output:      c.output,
			HeaderGuard: c.headerGuard,
			Notice:      c.notice,
			NoticeText:  c.noticeText,
			IncludeDir:  c.includeDir,
			MaxDepth:    c.maxDepth,
			Depfile:     c.depfile,
		}
		var missing []string
		for _, f := range []struct {
			name  string
			value string
		}{
			{"input", t.Input},
			{"output", t.Output},
			{"header_guard", t.HeaderGuard},
		} {
			if f.value == "" {
				missing = append(missing, "-"+f.name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing %s: %w", strings.Join(missing, " "), flag.ErrHelp)
		}
		if (t.Notice == "") == (t.NoticeText == "") {
			return nil, fmt.Errorf("exactly one of -notice or -notice_text is required: %w", flag.ErrHelp)
		}
		return []config.Target{t}, nil
	}
	dir, base := filepath.Split(c.configFile)
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(ctx, os.DirFS(dir), base, c.configFlags)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", c.configFile, err)
	}
	if c.target == "" {
		return cfg.Targets, nil
	}
	t, ok := cfg.Target(c.target)
	if !ok {
		var names []string
		for _, t := range cfg.Targets {
			names = append(names, t.Name)
		}
		return nil, fmt.Errorf("target %q not found in %s: available %q", c.target, c.configFile, names)
	}
	return []config.Target{t}, nil
}

// generate generates the unity header for t.
// In check mode, it compares the result with t.Output instead of writing it.
func generate(ctx context.Context, ofs *osfs.OSFS, t config.Target, check bool) error {
	ctx = clog.WithLabels(ctx, map[string]string{"target": t.Name})
	ctx, span := trace.NewSpan(ctx, "target:"+t.Name)
	var err error
	defer func() { span.Close(err) }()

	notice := t.NoticeText
	if t.Notice != "" {
		var buf []byte
		buf, err = ofs.ReadFile(ctx, t.Notice)
		if err != nil {
			err = fmt.Errorf("read notice: %w", err)
			return err
		}
		notice = string(buf)
	}

	var r *inliner.Result
	r, err = inliner.Inline(ctx, t.Input, inliner.Options{
		IncludeDir: t.IncludeDir,
		MaxDepth:   t.MaxDepth,
		FS:         ofs,
	})
	if err != nil {
		return err
	}

	var out bytes.Buffer
	err = inliner.Assemble(&out, inliner.Unit{
		Notice: notice,
		Guard:  t.HeaderGuard,
	}, r)
	if err != nil {
		return err
	}

	if check {
		var cur []byte
		cur, err = ofs.ReadFile(ctx, t.Output)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			err = fmt.Errorf("%s: %w: not generated", t.Output, errStale)
			return err
		case err != nil:
			return err
		case !bytes.Equal(cur, out.Bytes()):
			err = fmt.Errorf("%s: %w: regenerate with `amalgam header`", t.Output, errStale)
			return err
		}
		log.Infof("%s is up to date", t.Output)
		return nil
	}

	err = ofs.WriteFile(ctx, t.Output, out.Bytes(), 0644)
	if err != nil {
		err = fmt.Errorf("write output: %w", err)
		return err
	}
	if t.Depfile != "" {
		inputs := append([]string(nil), r.Files...)
		if t.Notice != "" {
			inputs = append(inputs, t.Notice)
		}
		err = makeutil.WriteDepsFile(ctx, ofs, t.Depfile, t.Output, inputs)
		if err != nil {
			err = fmt.Errorf("write depfile: %w", err)
			return err
		}
	}
	log.Infof("generated %s: %d headers, %d system includes, %d bytes", t.Output, len(r.Files), len(r.SystemIncludes), out.Len())
	return nil
}

func writeTrace(ctx context.Context, tc *trace.Context, fname string) error {
	var buf bytes.Buffer
	err := tc.WriteJSON(ctx, &buf)
	if err != nil {
		return err
	}
	return osfs.New("trace").WriteFile(ctx, fname, buf.Bytes(), 0644)
}

// flagMap is a repeatable key=value flag.
type flagMap map[string]string

func (m flagMap) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var kvs []string
	for _, k := range keys {
		kvs = append(kvs, k+"="+m[k])
	}
	return strings.Join(kvs, ",")
}

func (m flagMap) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	m[k] = val
	return nil
}

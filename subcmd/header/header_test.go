// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package header

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/amalgam/inliner"
	"go.chromium.org/infra/build/amalgam/toolsupport/makeutil"
)

func setupFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for fname, content := range files {
		fname := filepath.Join(dir, fname)
		err := os.MkdirAll(filepath.Dir(fname), 0755)
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(fname, []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func newRun(t *testing.T, args ...string) *run {
	t.Helper()
	c, ok := Cmd().CommandRun().(*run)
	if !ok {
		t.Fatalf("CommandRun() is not *run")
	}
	err := c.Flags.Parse(args)
	if err != nil {
		t.Fatalf("parse %q: %v", args, err)
	}
	return c
}

var abulafiaFiles = map[string]string{
	"NOTICE": "// Copyright 2017 Francois Chabot\n",
	"include/abulafia/abulafia.h": `// Copyright 2017 Francois Chabot

#ifndef ABULAFIA_H_
#define ABULAFIA_H_

#include "abulafia/parser.h"
#include "abulafia/pattern.h"

#endif  // ABULAFIA_H_
`,
	"include/abulafia/parser.h": `#ifndef ABULAFIA_PARSER_H_
#define ABULAFIA_PARSER_H_

#include <memory>
#include "abulafia/pattern.h"

namespace abu {
  // Parser state.
  class Parser {};
}  // namespace abu

#endif
`,
	"include/abulafia/pattern.h": `#ifndef ABULAFIA_PATTERN_H_
#define ABULAFIA_PATTERN_H_

#include <cstdint>
#include <memory>

namespace abu {
  class Pattern {};
}  // namespace abu

#endif
`,
}

const abulafiaWant = `// Copyright 2017 Francois Chabot

#ifndef ABULAFIA_SINGLE_H_
#define ABULAFIA_SINGLE_H_
#include <cstdint>
#include <memory>

namespace abu {
  class Pattern {};
}  // namespace abu

namespace abu {
  class Parser {};
}  // namespace abu


#endif
`

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	setupFiles(t, dir, abulafiaFiles)
	output := filepath.Join(dir, "single_include/abulafia.h")
	err := os.MkdirAll(filepath.Dir(output), 0755)
	if err != nil {
		t.Fatal(err)
	}
	depfile := output + ".d"
	traceJSON := filepath.Join(dir, "trace.json")

	c := newRun(t,
		"-input", filepath.Join(dir, "include/abulafia/abulafia.h"),
		"-output", output,
		"-header_guard", "ABULAFIA_SINGLE_H_",
		"-notice", filepath.Join(dir, "NOTICE"),
		"-I", filepath.Join(dir, "include"),
		"-depfile", depfile,
		"-trace", traceJSON)
	err = c.run(ctx, c.Flags.Args())
	if err != nil {
		t.Fatalf("run()=%v; want nil err", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(abulafiaWant, string(got)); diff != "" {
		t.Errorf("output diff -want +got:\n%s", diff)
	}

	deps, err := os.ReadFile(depfile)
	if err != nil {
		t.Fatal(err)
	}
	wantDeps := []string{
		filepath.Join(dir, "include/abulafia/abulafia.h"),
		filepath.Join(dir, "include/abulafia/parser.h"),
		filepath.Join(dir, "include/abulafia/pattern.h"),
		filepath.Join(dir, "NOTICE"),
	}
	if diff := cmp.Diff(wantDeps, makeutil.ParseDeps(deps)); diff != "" {
		t.Errorf("depfile diff -want +got:\n%s", diff)
	}

	buf, err := os.ReadFile(traceJSON)
	if err != nil {
		t.Fatal(err)
	}
	var events []map[string]any
	err = json.Unmarshal(buf, &events)
	if err != nil {
		t.Errorf("trace json: %v\n%s", err, buf)
	}
	// process_name, target, 3 headers.
	if len(events) != 5 {
		t.Errorf("len(events)=%d; want 5\n%s", len(events), buf)
	}

	// second run produces byte identical output.
	c = newRun(t,
		"-input", filepath.Join(dir, "include/abulafia/abulafia.h"),
		"-output", output,
		"-header_guard", "ABULAFIA_SINGLE_H_",
		"-notice", filepath.Join(dir, "NOTICE"),
		"-I", filepath.Join(dir, "include"))
	err = c.run(ctx, c.Flags.Args())
	if err != nil {
		t.Fatalf("second run()=%v; want nil err", err)
	}
	again, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(got) {
		t.Errorf("second run output differs:\n%s\nvs\n%s", again, got)
	}
}

func TestRun_Check(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	setupFiles(t, dir, abulafiaFiles)
	output := filepath.Join(dir, "abulafia.h")
	args := []string{
		"-input", filepath.Join(dir, "include/abulafia/abulafia.h"),
		"-output", output,
		"-header_guard", "ABULAFIA_SINGLE_H_",
		"-notice", filepath.Join(dir, "NOTICE"),
		"-I", filepath.Join(dir, "include"),
		"-check",
	}

	c := newRun(t, args...)
	err := c.run(ctx, c.Flags.Args())
	if !errors.Is(err, errStale) {
		t.Errorf("check missing output: run()=%v; want %v", err, errStale)
	}
	if _, err := os.Stat(output); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("check wrote output: stat=%v", err)
	}

	setupFiles(t, dir, map[string]string{"abulafia.h": "stale\n"})
	c = newRun(t, args...)
	err = c.run(ctx, c.Flags.Args())
	if !errors.Is(err, errStale) {
		t.Errorf("check stale output: run()=%v; want %v", err, errStale)
	}

	setupFiles(t, dir, map[string]string{"abulafia.h": abulafiaWant})
	c = newRun(t, args...)
	err = c.run(ctx, c.Flags.Args())
	if err != nil {
		t.Errorf("check fresh output: run()=%v; want nil err", err)
	}
}

func TestRun_StructureErrorKeepsOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	setupFiles(t, dir, map[string]string{
		"main.h":  "int x;\n#include \"a.h\"\n",
		"a.h":     "int a;\n",
		"unity.h": "previous\n",
	})
	output := filepath.Join(dir, "unity.h")
	c := newRun(t,
		"-input", filepath.Join(dir, "main.h"),
		"-output", output,
		"-header_guard", "UNITY_H_",
		"-notice_text", "// notice",
		"-I", dir)
	err := c.run(ctx, c.Flags.Args())
	var serr *inliner.StructureError
	if !errors.As(err, &serr) {
		t.Fatalf("run()=%v; want StructureError", err)
	}
	if serr.Path != filepath.Join(dir, "main.h") || serr.Line != 2 {
		t.Errorf("StructureError at %s:%d; want main.h:2", serr.Path, serr.Line)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "previous\n" {
		t.Errorf("output=%q; want previous content", got)
	}
}

func TestRun_Config(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	setupFiles(t, dir, abulafiaFiles)
	setupFiles(t, dir, map[string]string{
		"tiny.h": "#include <stdio.h>\nint tiny;\n",
	})
	setupFiles(t, dir, map[string]string{
		"amalgam.star": `
def init(ctx):
    root = ctx.flags["root"]
    return module(
        "config",
        targets = [
            struct(
                name = "abulafia",
                input = root + "/include/abulafia/abulafia.h",
                output = root + "/abulafia.h",
                header_guard = "ABULAFIA_SINGLE_H_",
                notice = root + "/NOTICE",
                include_dir = root + "/include",
            ),
            struct(
                name = "tiny",
                input = root + "/tiny.h",
                output = root + "/tiny_single.h",
                header_guard = "TINY_H_",
                notice_text = "// tiny",
            ),
        ],
    )
`,
	})

	c := newRun(t,
		"-config", filepath.Join(dir, "amalgam.star"),
		"-config_flag", "root="+filepath.ToSlash(dir),
		"-target", "tiny")
	err := c.run(ctx, c.Flags.Args())
	if err != nil {
		t.Fatalf("run(-target tiny)=%v; want nil err", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "abulafia.h")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("-target tiny generated abulafia.h: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "tiny_single.h"))
	if err != nil {
		t.Fatal(err)
	}
	want := "// tiny\n#ifndef TINY_H_\n#define TINY_H_\n#include <stdio.h>\n\nint tiny;\n\n#endif\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("tiny diff -want +got:\n%s", diff)
	}

	c = newRun(t,
		"-config", filepath.Join(dir, "amalgam.star"),
		"-config_flag", "root="+filepath.ToSlash(dir))
	err = c.run(ctx, c.Flags.Args())
	if err != nil {
		t.Fatalf("run()=%v; want nil err", err)
	}
	got, err = os.ReadFile(filepath.Join(dir, "abulafia.h"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(abulafiaWant, string(got)); diff != "" {
		t.Errorf("abulafia diff -want +got:\n%s", diff)
	}

	c = newRun(t,
		"-config", filepath.Join(dir, "amalgam.star"),
		"-config_flag", "root="+filepath.ToSlash(dir),
		"-target", "nope")
	err = c.run(ctx, c.Flags.Args())
	if err == nil {
		t.Errorf("run(-target nope)=nil; want err")
	}
}

func TestRun_UsageErrors(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		args []string
	}{
		{
			name: "no flags",
		},
		{
			name: "no notice",
			args: []string{"-input", "a.h", "-output", "o.h", "-header_guard", "G"},
		},
		{
			name: "both notices",
			args: []string{"-input", "a.h", "-output", "o.h", "-header_guard", "G", "-notice", "N", "-notice_text", "//"},
		},
		{
			name: "position args",
			args: []string{"-input", "a.h", "-output", "o.h", "-header_guard", "G", "-notice", "N", "extra"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newRun(t, tc.args...)
			err := c.run(ctx, c.Flags.Args())
			if !errors.Is(err, flag.ErrHelp) {
				t.Errorf("run(%q)=%v; want %v", tc.args, err, flag.ErrHelp)
			}
		})
	}
}

func TestRun_MissingNotice(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	setupFiles(t, dir, map[string]string{"a.h": "int a;\n"})
	c := newRun(t,
		"-input", filepath.Join(dir, "a.h"),
		"-output", filepath.Join(dir, "out.h"),
		"-header_guard", "G",
		"-notice", filepath.Join(dir, "NOTICE"))
	err := c.run(ctx, c.Flags.Args())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run()=%v; want %v", err, os.ErrNotExist)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.h")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output written despite error: %v", err)
	}
}

func TestFlagMap(t *testing.T) {
	m := make(flagMap)
	for _, v := range []string{"b=2", "a=1", "a=3", "c="} {
		err := m.Set(v)
		if err != nil {
			t.Errorf("Set(%q)=%v; want nil err", v, err)
		}
	}
	if got, want := m.String(), "a=3,b=2,c="; got != want {
		t.Errorf("String()=%q; want %q", got, want)
	}
	for _, v := range []string{"novalue", "=x"} {
		if err := m.Set(v); err == nil {
			t.Errorf("Set(%q)=nil; want err", v)
		}
	}
}

// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config provides starlark config of amalgamation targets.
//
// A config file defines `init(ctx)` returning `module` with `targets`:
//
//	def init(ctx):
//	    return module(
//	        "config",
//	        targets = [
//	            struct(
//	                name = "abulafia",
//	                input = "include/abulafia/abulafia_all.h",
//	                output = "single_include/abulafia/abulafia.h",
//	                header_guard = "ABULAFIA_SINGLE_INCLUDE_H_",
//	                notice = "NOTICE",
//	                include_dir = "include",
//	            ),
//	        ],
//	    )
//
// `ctx.flags` holds the values given by -config_flag.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"slices"

	"github.com/charmbracelet/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

const configEntryPoint = "init"

// Target is an amalgamation target.
type Target struct {
	// Name identifies the target. Default to Output.
	Name string

	// Input is the root header.
	Input string
	// Output is the unity header to generate.
	Output string
	// HeaderGuard is the header guard macro of Output.
	HeaderGuard string

	// Notice is a path of the copyright notice file.
	Notice string
	// NoticeText is the copyright notice itself.
	// Exactly one of Notice or NoticeText is set.
	NoticeText string

	// IncludeDir is the directory local includes are resolved against.
	IncludeDir string
	// MaxDepth is the max include depth. 0 means default.
	MaxDepth int
	// Depfile is the path of depfile to generate, if set.
	Depfile string
}

// Config is a loaded config.
type Config struct {
	Targets []Target
}

// Target returns the target for name.
func (c *Config) Target(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// EvalError is an error of starlark evaluation.
type EvalError struct {
	fname string
	err   *starlark.EvalError
}

func (e EvalError) Error() string {
	return fmt.Sprintf("failed to run %s: %v", e.fname, e.err)
}

// Backtrace returns the starlark backtrace.
func (e EvalError) Backtrace() string {
	return e.err.Backtrace()
}

func (e EvalError) Unwrap() error {
	return e.err
}

func predeclared() starlark.StringDict {
	runtimeModule := &starlarkstruct.Module{
		Name: "runtime",
		Members: starlark.StringDict{
			"os":   starlark.String(runtime.GOOS),
			"arch": starlark.String(runtime.GOARCH),
		},
	}
	runtimeModule.Freeze()
	return starlark.StringDict{
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module":  starlark.NewBuiltin("module", starlarkstruct.MakeModule),
		"runtime": runtimeModule,
	}
}

func wrapEvalError(fname string, err error) error {
	var eerr *starlark.EvalError
	if errors.As(err, &eerr) {
		log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		return EvalError{fname: fname, err: eerr}
	}
	return fmt.Errorf("failed to run %s: %w", fname, err)
}

// Load loads config in fname on fsys, and runs its `init` with flags.
func Load(ctx context.Context, fsys fs.FS, fname string, flags map[string]string) (*Config, error) {
	buf, err := fs.ReadFile(fsys, fname)
	if err != nil {
		return nil, err
	}
	thread := &starlark.Thread{
		Name: "load",
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not allowed")
		},
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, fname, buf, predeclared())
	if err != nil {
		log.Warnf("thread:%s failed to exec file %s: %v", thread.Name, fname, err)
		return nil, wrapEvalError(fname, err)
	}
	fun, ok := globals[configEntryPoint]
	if !ok {
		return nil, fmt.Errorf("%s is not defined in %s", configEntryPoint, fname)
	}
	if _, ok := fun.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s %s is not callable in %s", configEntryPoint, fun.Type(), fname)
	}

	starFlags := starlark.NewDict(len(flags))
	for k, v := range flags {
		err := starFlags.SetKey(starlark.String(k), starlark.String(v))
		if err != nil {
			return nil, fmt.Errorf("set flag %s=%s: %w", k, v, err)
		}
	}
	starFlags.Freeze()
	sctx := starlarkstruct.FromStringDict(starlark.String("ctx"), starlark.StringDict{
		"flags": starFlags,
	})
	thread.Name = configEntryPoint
	ret, err := starlark.Call(thread, fun, starlark.Tuple{sctx}, nil)
	if err != nil {
		log.Warnf("thread:%s failed to run %s: %v", thread.Name, configEntryPoint, err)
		return nil, wrapEvalError(fname, err)
	}
	m, ok := ret.(starlark.HasAttrs)
	if !ok {
		return nil, fmt.Errorf("%s returned %s, want module", configEntryPoint, ret.Type())
	}
	targets, err := m.Attr("targets")
	if err != nil || targets == nil {
		return nil, fmt.Errorf("no targets in %v: %v", ret, err)
	}
	cfg := &Config{}
	iter := starlark.Iterate(targets)
	if iter == nil {
		return nil, fmt.Errorf("targets %s, want list", targets.Type())
	}
	defer iter.Done()
	seen := make(map[string]bool)
	var v starlark.Value
	for i := 0; iter.Next(&v); i++ {
		t, err := unpackTarget(v)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("targets[%d]: duplicate target %q", i, t.Name)
		}
		seen[t.Name] = true
		cfg.Targets = append(cfg.Targets, t)
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets in %s", fname)
	}
	log.Infof("config %s: %d targets", fname, len(cfg.Targets))
	return cfg, nil
}

func unpackTarget(v starlark.Value) (Target, error) {
	st, ok := v.(starlark.HasAttrs)
	if !ok {
		return Target{}, fmt.Errorf("got %s, want struct", v.Type())
	}
	var t Target
	var err error
	for _, f := range []struct {
		name     string
		p        *string
		required bool
	}{
		{name: "name", p: &t.Name},
		{name: "input", p: &t.Input, required: true},
		{name: "output", p: &t.Output, required: true},
		{name: "header_guard", p: &t.HeaderGuard, required: true},
		{name: "notice", p: &t.Notice},
		{name: "notice_text", p: &t.NoticeText},
		{name: "include_dir", p: &t.IncludeDir},
		{name: "depfile", p: &t.Depfile},
	} {
		*f.p, err = attrString(st, f.name, f.required)
		if err != nil {
			return Target{}, err
		}
	}
	if slices.Contains(st.AttrNames(), "max_depth") {
		a, err := st.Attr("max_depth")
		if err != nil {
			return Target{}, err
		}
		t.MaxDepth, err = starlark.AsInt32(a)
		if err != nil {
			return Target{}, fmt.Errorf("max_depth: %w", err)
		}
	}
	if (t.Notice == "") == (t.NoticeText == "") {
		return Target{}, errors.New("exactly one of notice or notice_text must be set")
	}
	if t.Name == "" {
		t.Name = t.Output
	}
	return t, nil
}

func attrString(st starlark.HasAttrs, name string, required bool) (string, error) {
	if !slices.Contains(st.AttrNames(), name) {
		if required {
			return "", fmt.Errorf("missing %s", name)
		}
		return "", nil
	}
	a, err := st.Attr(name)
	if err != nil {
		return "", err
	}
	s, ok := starlark.AsString(a)
	if !ok {
		return "", fmt.Errorf("%s: got %s, want string", name, a.Type())
	}
	return s, nil
}

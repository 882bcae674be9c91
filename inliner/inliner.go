// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inliner

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
	"go.chromium.org/infra/build/amalgam/o11y/trace"
	"go.chromium.org/infra/build/amalgam/osfs"
)

// DefaultMaxDepth is the max include depth used when Options.MaxDepth is not set.
const DefaultMaxDepth = 256

// FileSystem reads headers.
type FileSystem interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// Options are options of Inline.
type Options struct {
	// IncludeDir is the directory `#include "foo.h"` is resolved against.
	// Default to the current directory.
	IncludeDir string

	// MaxDepth is the max depth of the include chain, counting the root.
	// Default to DefaultMaxDepth.
	MaxDepth int

	// FS is the filesystem to read headers from.
	// Default to OS filesystem.
	FS FileSystem
}

// Result is a result of Inline.
type Result struct {
	// Body is the flattened lines of all local headers.
	Body []string

	// SystemIncludes are the system #include lines, sorted and deduplicated.
	SystemIncludes []string

	// Files are the headers read, in the order of first visit,
	// as they were opened. Files[0] is the root header.
	Files []string
}

// frame is a header being processed in the depth-first traversal.
type frame struct {
	ctx  context.Context
	span *trace.Span

	path  string
	lines []Line
	pos   int

	// code is set once a non-include line is emitted for the header.
	code bool
}

// state is the state of one Inline call.
type state struct {
	fs         FileSystem
	includeDir string
	maxDepth   int

	// canonical path -> visited.
	visited map[string]bool

	// system #include lines.
	system map[string]bool

	body  []string
	files []string

	stack []*frame
}

// Inline flattens the header at root and the local headers it includes.
func Inline(ctx context.Context, root string, opts Options) (*Result, error) {
	started := time.Now()
	s := &state{
		fs:         opts.FS,
		includeDir: opts.IncludeDir,
		maxDepth:   opts.MaxDepth,
		visited:    make(map[string]bool),
		system:     make(map[string]bool),
	}
	if s.fs == nil {
		s.fs = osfs.New("inliner")
	}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxDepth
	}
	err := s.run(ctx, root)
	if err != nil {
		for _, f := range s.stack {
			f.span.Close(err)
		}
		return nil, err
	}
	r := &Result{
		Body:  s.body,
		Files: s.files,
	}
	for line := range s.system {
		r.SystemIncludes = append(r.SystemIncludes, line)
	}
	sort.Strings(r.SystemIncludes)
	clog.Infof(ctx, "inlined %s: files=%d lines=%d system_includes=%d in %s", root, len(r.Files), len(r.Body), len(r.SystemIncludes), time.Since(started))
	return r, nil
}

func (s *state) run(ctx context.Context, root string) error {
	err := s.enter(ctx, nil, root, 0)
	if err != nil {
		return err
	}
	for len(s.stack) > 0 {
		f := s.stack[len(s.stack)-1]
		if f.pos >= len(f.lines) {
			s.leave(f)
			continue
		}
		line := f.lines[f.pos]
		f.pos++
		inc, ok, err := ParseInclude(line.Text)
		if err != nil {
			return &StructureError{Path: f.path, Line: line.N, Err: err}
		}
		if !ok {
			f.code = true
			s.body = append(s.body, line.Text)
			continue
		}
		if f.code {
			return &StructureError{Path: f.path, Line: line.N, Err: errIncludeAfterCode}
		}
		switch inc.Kind {
		case Local:
			err = s.enter(f.ctx, f, s.resolve(inc.Name), line.N)
			if err != nil {
				return err
			}
		default:
			if log.V(1) {
				clog.Infof(f.ctx, "hoist %q", inc.Line)
			}
			s.system[inc.Line] = true
		}
	}
	return nil
}

// resolve returns the path to open for `#include "name"`.
func (s *state) resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.includeDir, filepath.FromSlash(name))
}

func canonical(fname string) string {
	abs, err := filepath.Abs(fname)
	if err != nil {
		return filepath.Clean(fname)
	}
	return abs
}

// enter pushes a frame for fname, unless fname has already been visited.
// from is the frame that includes fname at line, or nil for the root.
func (s *state) enter(ctx context.Context, from *frame, fname string, line int) error {
	key := canonical(fname)
	if s.visited[key] {
		if log.V(1) {
			clog.Infof(ctx, "skip visited %s", fname)
		}
		return nil
	}
	if len(s.stack) >= s.maxDepth {
		chain := make([]string, 0, len(s.stack)+1)
		for _, f := range s.stack {
			chain = append(chain, f.path)
		}
		chain = append(chain, fname)
		return &DepthError{MaxDepth: s.maxDepth, Chain: chain}
	}
	s.visited[key] = true

	ctx, span := trace.NewSpan(ctx, "load:"+fname)
	ctx = clog.WithLabels(ctx, map[string]string{
		"file": fname,
	})
	clog.Infof(ctx, "loading: %s", fname)
	buf, err := s.fs.ReadFile(ctx, fname)
	if err != nil {
		nerr := &NotFoundError{Path: fname, Err: err}
		if from != nil {
			nerr.IncludedFrom = from.path
			nerr.Line = line
		}
		span.Close(nerr)
		return nerr
	}
	lines := Filter(buf)
	span.SetAttr("path", fname)
	span.SetAttr("lines", len(lines))
	span.SetAttr("depth", strconv.Itoa(len(s.stack)+1))
	s.files = append(s.files, fname)
	s.stack = append(s.stack, &frame{
		ctx:   ctx,
		span:  span,
		path:  fname,
		lines: lines,
	})
	return nil
}

// leave pops f, which must be the top of the stack,
// and emits the separator line after its content.
func (s *state) leave(f *frame) {
	s.body = append(s.body, "")
	s.stack = s.stack[:len(s.stack)-1]
	f.span.Close(nil)
	if log.V(1) {
		clog.Infof(f.ctx, "done %s", f.path)
	}
}

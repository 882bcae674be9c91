// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inliner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// errIncludeAfterCode is reported when an #include follows code in the same file.
	errIncludeAfterCode = errors.New("include after code has started")

	// errUnterminatedPath is reported for `#include "foo.h` without closing quote.
	errUnterminatedPath = errors.New("unterminated include path")

	// errEmptyPath is reported for `#include ""`.
	errEmptyPath = errors.New("empty include path")

	// ErrBadGuard is returned by Assemble for an empty or malformed header guard.
	ErrBadGuard = errors.New("bad header guard")
)

// NotFoundError is an error when a header can not be read.
type NotFoundError struct {
	// Path is the path of the header as it was opened.
	Path string

	// IncludedFrom is the header that includes Path,
	// or empty for the root header.
	IncludedFrom string
	// Line is the line number of the #include in IncludedFrom.
	Line int

	Err error
}

func (e *NotFoundError) Error() string {
	if e.IncludedFrom == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s:%d: include %s: %v", e.IncludedFrom, e.Line, e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// StructureError is an error when a header violates the structure
// the inliner relies on, e.g. an #include after code.
type StructureError struct {
	Path string
	Line int
	Err  error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

// DepthError is an error when the include chain is deeper than
// the configured max depth.
type DepthError struct {
	MaxDepth int
	// Chain is the include chain from the root header.
	Chain []string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("include depth exceeds %d: %s", e.MaxDepth, strings.Join(e.Chain, " -> "))
}

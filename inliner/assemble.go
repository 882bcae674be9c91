// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inliner

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Unit describes the unity header wrapped around a Result.
type Unit struct {
	// Notice is the copyright notice emitted verbatim at the top.
	Notice string

	// Guard is the header guard macro, e.g. `FOO_SINGLE_INCLUDE_H_`.
	Guard string
}

// Assemble writes the unity header for r to w.
//
// The output is the notice, `#ifndef`/`#define` of the guard,
// the system includes, a blank line, the body and `#endif`.
// Each of them is followed by a newline.
func Assemble(w io.Writer, u Unit, r *Result) error {
	if u.Guard == "" || strings.ContainsAny(u.Guard, whitespace) {
		return fmt.Errorf("%w: %q", ErrBadGuard, u.Guard)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, u.Notice)
	fmt.Fprintf(bw, "#ifndef %s\n", u.Guard)
	fmt.Fprintf(bw, "#define %s\n", u.Guard)
	for _, inc := range r.SystemIncludes {
		fmt.Fprintln(bw, inc)
	}
	fmt.Fprintln(bw)
	for _, line := range r.Body {
		fmt.Fprintln(bw, line)
	}
	fmt.Fprintln(bw, "#endif")
	return bw.Flush()
}

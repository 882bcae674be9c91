// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inliner

import (
	"strings"
)

const includeDirective = "#include"

// Kind is a kind of include.
type Kind int

const (
	// System is an include of a header not owned by the project,
	// e.g. `#include <vector>` or `#include FOO_H`.
	System Kind = iota

	// Local is an include of a project header, i.e. `#include "foo.h"`.
	Local
)

func (k Kind) String() string {
	switch k {
	case System:
		return "system"
	case Local:
		return "local"
	}
	return "unknown"
}

// Include is an #include directive.
type Include struct {
	Kind Kind

	// Name is the path in quotes for Local, e.g. `foo.h` for `#include "foo.h"`.
	// It is empty for System.
	Name string

	// Line is the directive line, without trailing whitespace.
	Line string
}

// ParseInclude parses line as an #include directive.
// It returns false if line is not an #include directive.
//
// The text after a closing quote, e.g. a trailing comment,
// is ignored for Local. System keeps the whole line.
func ParseInclude(line string) (Include, bool, error) {
	line = strings.TrimRight(line, " \t\r\f\v")
	stripped := strings.TrimSpace(line)
	if !strings.HasPrefix(stripped, includeDirective) {
		return Include{}, false, nil
	}
	token := strings.TrimSpace(stripped[len(includeDirective):])
	if !strings.HasPrefix(token, `"`) {
		// <path.h>, MACRO, or _next <path.h> for #include_next.
		return Include{Kind: System, Line: line}, true, nil
	}
	i := strings.IndexByte(token[1:], '"')
	if i < 0 {
		return Include{}, true, errUnterminatedPath
	}
	name := token[1 : i+1]
	if name == "" {
		return Include{}, true, errEmptyPath
	}
	return Include{Kind: Local, Name: name, Line: line}, true, nil
}

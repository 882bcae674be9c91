// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package inliner

import (
	"bytes"
	"strings"
)

const (
	whitespace    = " \t\r\n\f\v"
	lineComment   = "//"
	guardIfndef   = "#ifndef"
	guardDefine   = "#define"
	guardEndif    = "#endif"
	minGuardLines = 3
)

// Line is a line of a header that survived Filter.
type Line struct {
	// N is 1-based line number in the header.
	N int

	// Text is the line without trailing whitespace.
	// Leading whitespace is kept.
	Text string
}

// Filter returns lines of buf to be inlined.
// It drops blank lines and whole-line `//` comments, and removes
// a header guard when the remaining lines start with `#ifndef`, `#define`
// and end with `#endif`.
func Filter(buf []byte) []Line {
	var lines []Line
	n := 0
	for len(buf) > 0 {
		n++
		var line []byte
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			line = buf
			buf = nil
		} else {
			line = buf[:i]
			buf = buf[i+1:]
		}
		line = bytes.TrimRight(line, whitespace)
		trimmed := bytes.TrimLeft(line, whitespace)
		if len(trimmed) == 0 || bytes.HasPrefix(trimmed, []byte(lineComment)) {
			continue
		}
		lines = append(lines, Line{N: n, Text: string(line)})
	}
	if hasGuard(lines) {
		lines = lines[2 : len(lines)-1]
	}
	return lines
}

func hasGuard(lines []Line) bool {
	if len(lines) < minGuardLines {
		return false
	}
	first := strings.TrimSpace(lines[0].Text)
	second := strings.TrimSpace(lines[1].Text)
	last := strings.TrimSpace(lines[len(lines)-1].Text)
	return strings.HasPrefix(first, guardIfndef) &&
		strings.HasPrefix(second, guardDefine) &&
		strings.HasPrefix(last, guardEndif)
}

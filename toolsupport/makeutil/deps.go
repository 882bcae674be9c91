// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package makeutil provides utilities for make style depfiles.
package makeutil

import (
	"bytes"
	"context"
	"io/fs"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
)

// DepsFileWriter writes a depfile.
type DepsFileWriter interface {
	WriteFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error
}

// WriteDepsFile writes a depfile for output depending on inputs to fname.
func WriteDepsFile(ctx context.Context, fsys DepsFileWriter, fname, output string, inputs []string) error {
	if fname == "" {
		return nil
	}
	b := FormatDeps(output, inputs)
	if log.V(1) {
		clog.Infof(ctx, "deps %s => %s", fname, b)
	}
	return fsys.WriteFile(ctx, fname, b, 0644)
}

// FormatDeps formats a depfile for output depending on inputs.
// Spaces in paths are escaped with '\', and each input is put on
// its own continuation line.
func FormatDeps(output string, inputs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(escapePath(output))
	buf.WriteString(":")
	for _, in := range inputs {
		buf.WriteString(" \\\n  ")
		buf.WriteString(escapePath(in))
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

func escapePath(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}

// ParseDeps parses deps and returns a list of inputs.
func ParseDeps(b []byte) []string {
	// deps contents
	// <output>: <input> ...
	// <input> is space separated
	// '\'+newline is space
	// '\'+space is escaped space (not separator)
	var token string
	// skip until ':'
	i := bytes.IndexByte(b, ':')
	if i < 0 {
		return nil
	}
	// collect inputs
	var inputs []string
	for s := b[i+1:]; len(s) > 0; {
		token, s = nextToken(s)
		if token != "" {
			inputs = append(inputs, token)
		}
	}
	return inputs
}

func nextToken(s []byte) (string, []byte) {
	var sb strings.Builder
	// skip spaces
skipSpaces:
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\n' {
			i++
			continue
		}
		if s[i] == '\\' && i+2 < len(s) && s[i+1] == '\r' && s[i+2] == '\n' {
			i += 2
			continue
		}
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			s = s[i:]
			break skipSpaces
		}
	}
	// extract next space not escaped
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case ' ':
				sb.WriteByte(s[i])
			case '\r', '\n':
				// '\'+newline is space
				return sb.String(), s[i+1:]
			default:
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
			continue
		}
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			return sb.String(), s[i+1:]
		}
		sb.WriteByte(s[i])
	}
	return sb.String(), nil
}

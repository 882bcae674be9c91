// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package inliner flattens a tree of local C/C++ headers into a single
// "unity" header.
//
// It only recognizes the following forms of #include
//
//	#include "foo.h"   local: inlined in place, at most once
//	#include <foo.h>   system: hoisted to the top of the output
//	#include FOO_H     system: hoisted verbatim, never expanded
//
// It doesn't process `#if`, `#ifdef` or macros. Whole-line `//` comments
// and blank lines are dropped, and a header guard wrapping a whole file
// (`#ifndef`, `#define` ... `#endif`) is removed when the file is inlined.
//
// All includes of a file must precede its first line of code.
// An include after code is reported as StructureError.
//
// A local file is inlined at the position of its first include only.
// Later includes of the same file, including an include of itself
// directly or through other files, contribute nothing.
package inliner

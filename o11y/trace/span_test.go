// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewSpan(t *testing.T) {
	ctx := context.Background()

	if _, span := NewSpan(ctx, "no-trace"); span != nil {
		t.Errorf("NewSpan without trace context=%v; want nil", span)
	}

	const id = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	tc := New(ctx, id)
	ctx = NewContext(ctx, tc)
	if got := ID(ctx); got != id {
		t.Errorf("ID(ctx)=%q; want %q", got, id)
	}

	rctx, root := NewSpan(ctx, "run")
	_, child := NewSpan(rctx, "load:a.h")
	child.SetAttr("lines", 3)
	child.Close(nil)
	if CurSpan(rctx) != root {
		t.Errorf("CurSpan(rctx)=%v; want %v", CurSpan(rctx), root)
	}
	root.Close(errors.New("failed"))

	var got []string
	for _, sd := range tc.Spans() {
		got = append(got, sd.Name)
	}
	if diff := cmp.Diff([]string{"run", "load:a.h"}, got); diff != "" {
		t.Errorf("spans diff -want +got:\n%s", diff)
	}
	spans := tc.Spans()
	if spans[1].Parent != spans[0].ID {
		t.Errorf("child parent=%d; want %d", spans[1].Parent, spans[0].ID)
	}
}

func TestNewInvalidID(t *testing.T) {
	tc := New(context.Background(), "not-a-uuid")
	if tc.ID() == "" {
		t.Errorf("ID()=%q; want generated id", tc.ID())
	}
}

func TestWriteJSON(t *testing.T) {
	ctx := context.Background()
	tc := New(ctx, "")
	ctx = NewContext(ctx, tc)
	_, span := NewSpan(ctx, "load:a.h")
	span.SetAttr("path", "a.h")
	span.Close(nil)

	var buf bytes.Buffer
	err := tc.WriteJSON(ctx, &buf)
	if err != nil {
		t.Fatalf("WriteJSON()=%v; want nil err", err)
	}
	var events []map[string]any
	err = json.Unmarshal(buf.Bytes(), &events)
	if err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events)=%d; want 2: %s", len(events), buf.String())
	}
	if events[0]["ph"] != "M" || events[1]["ph"] != "X" {
		t.Errorf("ph=%v,%v; want M,X", events[0]["ph"], events[1]["ph"])
	}
	if events[1]["name"] != "load:a.h" {
		t.Errorf("name=%v; want load:a.h", events[1]["name"])
	}
}

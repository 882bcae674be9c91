// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package iometrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStats(t *testing.T) {
	m := New("test")
	errFail := errors.New("fail")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.ReadDone(100, time.Duration(i)*time.Millisecond, nil)
		}(i)
	}
	wg.Wait()
	m.ReadDone(0, time.Millisecond, errFail)
	m.WriteDone(42, 20*time.Millisecond, nil)
	m.OpsDone(time.Millisecond, errFail)

	want := Stats{
		Ops:        1,
		OpsErrs:    1,
		Reads:      11,
		ReadBytes:  1000,
		ReadErrs:   1,
		Writes:     1,
		WriteBytes: 42,
		Longest:    20 * time.Millisecond,
	}
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Errorf("Stats() diff -want +got:\n%s", diff)
	}
	if got, want := m.Stats().String(), "read=11/1 (1000 bytes) write=1/0 (42 bytes) ops=1/1 longest=20ms"; got != want {
		t.Errorf("String()=%q; want %q", got, want)
	}
}

func TestNil(t *testing.T) {
	var m *IOMetrics
	m.ReadDone(1, time.Second, nil)
	m.WriteDone(1, time.Second, nil)
	m.OpsDone(time.Second, nil)
	if got := m.Stats(); got != (Stats{}) {
		t.Errorf("nil Stats()=%v; want zero", got)
	}
	if got := m.Name(); got != "<nil>" {
		t.Errorf("nil Name()=%q; want <nil>", got)
	}
}

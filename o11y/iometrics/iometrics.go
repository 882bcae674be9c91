// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package iometrics counts file I/O of a run.
package iometrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IOMetrics counts file I/O. A nil IOMetrics counts nothing.
type IOMetrics struct {
	name string

	ops     atomic.Int64
	opsErrs atomic.Int64

	reads     atomic.Int64
	readBytes atomic.Int64
	readErrs  atomic.Int64

	writes     atomic.Int64
	writeBytes atomic.Int64
	writeErrs  atomic.Int64

	// longest op in nanoseconds.
	longest atomic.Int64
}

// New returns new iometrics for name.
func New(name string) *IOMetrics {
	return &IOMetrics{name: name}
}

// Name returns the name of the iometrics.
func (m *IOMetrics) Name() string {
	if m == nil {
		return "<nil>"
	}
	return m.name
}

// OpsDone counts an operation other than read or write, e.g. stat.
func (m *IOMetrics) OpsDone(dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.ops.Add(1)
	if err != nil {
		m.opsErrs.Add(1)
	}
	m.observe(dur)
}

// ReadDone counts a read of n bytes in a file.
func (m *IOMetrics) ReadDone(n int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.reads.Add(1)
	m.readBytes.Add(int64(n))
	if err != nil {
		m.readErrs.Add(1)
	}
	m.observe(dur)
}

// WriteDone counts a write of n bytes in a file.
func (m *IOMetrics) WriteDone(n int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.writes.Add(1)
	m.writeBytes.Add(int64(n))
	if err != nil {
		m.writeErrs.Add(1)
	}
	m.observe(dur)
}

func (m *IOMetrics) observe(dur time.Duration) {
	for {
		cur := m.longest.Load()
		if int64(dur) <= cur || m.longest.CompareAndSwap(cur, int64(dur)) {
			return
		}
	}
}

// Stats is a snapshot of IOMetrics.
type Stats struct {
	Ops     int64
	OpsErrs int64

	Reads     int64
	ReadBytes int64
	ReadErrs  int64

	Writes     int64
	WriteBytes int64
	WriteErrs  int64

	// Longest is the duration of the longest operation.
	Longest time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("read=%d/%d (%d bytes) write=%d/%d (%d bytes) ops=%d/%d longest=%s",
		s.Reads, s.ReadErrs, s.ReadBytes,
		s.Writes, s.WriteErrs, s.WriteBytes,
		s.Ops, s.OpsErrs,
		s.Longest)
}

// Stats returns the snapshot of the iometrics.
func (m *IOMetrics) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Ops:        m.ops.Load(),
		OpsErrs:    m.opsErrs.Load(),
		Reads:      m.reads.Load(),
		ReadBytes:  m.readBytes.Load(),
		ReadErrs:   m.readErrs.Load(),
		Writes:     m.writes.Load(),
		WriteBytes: m.writeBytes.Load(),
		WriteErrs:  m.writeErrs.Load(),
		Longest:    time.Duration(m.longest.Load()),
	}
}

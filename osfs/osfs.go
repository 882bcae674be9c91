// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package osfs provides OS Filesystem access.
package osfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
	"go.chromium.org/infra/build/amalgam/o11y/iometrics"
)

// slowThreshold is the duration after which an operation is logged as slow.
const slowThreshold = 10 * time.Second

// OSFS provides OS Filesystem access.
// It counts metrics by iometrics.
type OSFS struct {
	*iometrics.IOMetrics
}

// New creates new OSFS.
func New(name string) *OSFS {
	return &OSFS{IOMetrics: iometrics.New(name)}
}

func logSlow(ctx context.Context, name string, dur time.Duration, err error) {
	buf := make([]byte, 4*1024)
	n := runtime.Stack(buf, false)
	clog.Warningf(ctx, "slow op %s: %s %v\n%s", name, dur, err, buf[:n])
}

// ReadFile reads the named file and returns its contents.
// The file is opened, read fully and closed before it returns.
func (fs *OSFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	started := time.Now()
	f, err := os.Open(name)
	if err != nil {
		fs.ReadDone(0, time.Since(started), err)
		return nil, err
	}
	buf, err := io.ReadAll(f)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	dur := time.Since(started)
	fs.ReadDone(len(buf), dur, err)
	if dur > slowThreshold {
		logSlow(ctx, name, dur, err)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Stat returns a FileInfo describing the named file.
func (fs *OSFS) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	started := time.Now()
	fi, err := os.Stat(name)
	dur := time.Since(started)
	fs.OpsDone(dur, err)
	if dur > slowThreshold {
		logSlow(ctx, name, dur, err)
	}
	return fi, err
}

// WriteFile writes data to the named file, replacing it atomically.
// data is written to a temporary file in the same directory, which is
// renamed over name only when it has been written completely, so
// readers never see a partial file and a failed write leaves
// the existing file untouched.
func (fs *OSFS) WriteFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	started := time.Now()
	err := writeFileAtomic(name, data, perm)
	dur := time.Since(started)
	fs.WriteDone(len(data), dur, err)
	if dur > slowThreshold {
		logSlow(ctx, name, dur, err)
	}
	return err
}

func writeFileAtomic(name string, data []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(name)
	f, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp*")
	if err != nil {
		return err
	}
	tmpname := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpname)
		}
	}()
	n, err := f.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write to %s: %d < %d", tmpname, n, len(data))
	}
	err = f.Chmod(perm)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmpname, name)
}

// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
)

// eventObject is a trace event object of the chrome trace event format.
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU
type eventObject struct {
	// The name of the event, as displayed in trace viewer.
	Name string `json:"name"`

	// The event categories.
	Cat string `json:"cat,omitempty"`

	// The event type.
	// "X" for complete events, "M" for metadata events.
	Ph string `json:"ph"`

	// The tracing clock timestamp of the event in microseconds.
	T int64 `json:"ts"`

	Pid int64 `json:"pid"`
	Tid int64 `json:"tid"`

	// The tracing clock duration of complete events in microseconds.
	Dur int64 `json:"dur,omitempty"`

	Args map[string]any `json:"args,omitempty"`
}

const (
	amalgamPid = 1
	amalgamTid = 1
)

// WriteJSON writes spans of the trace context to w in the chrome trace
// event format, loadable in chrome://tracing or Perfetto.
func (t *Context) WriteJSON(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	objs := []eventObject{
		{
			Name: "process_name",
			Ph:   "M",
			Pid:  amalgamPid,
			Tid:  amalgamTid,
			Args: map[string]any{
				"name": "amalgam",
				"id":   t.ID(),
			},
		},
	}
	for _, sd := range t.Spans() {
		args := sd.Attrs
		if sd.Err != nil {
			args["error"] = sd.Err.Error()
		}
		objs = append(objs, eventObject{
			Name: sd.Name,
			Cat:  "amalgam",
			Ph:   "X",
			T:    sd.Start.Sub(t.start).Microseconds(),
			Pid:  amalgamPid,
			Tid:  amalgamTid,
			Dur:  sd.Duration().Microseconds(),
			Args: args,
		})
	}
	fmt.Fprintf(bw, "[\n")
	for i, obj := range objs {
		if i > 0 {
			fmt.Fprintf(bw, ",\n")
		}
		buf, err := json.Marshal(obj)
		if err != nil {
			clog.Warningf(ctx, "Failed to marshal %v: %v", obj, err)
			return err
		}
		bw.Write(buf)
	}
	fmt.Fprintf(bw, "\n]\n")
	return bw.Flush()
}

// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace manages execution traces.
package trace

import (
	"context"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"go.chromium.org/infra/build/amalgam/o11y/clog"
)

// Context is a trace context.
type Context struct {
	traceID uuid.UUID
	start   time.Time

	mu sync.Mutex
	// first span is the top span in the trace.
	spans []*Span
}

// New creates a new context for id (uuid).
// If id is empty or not a uuid, it generates a new random id.
func New(ctx context.Context, id string) *Context {
	if log.V(2) {
		clog.Infof(ctx, "new trace context for %q", id)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		if id != "" {
			clog.Warningf(ctx, "bad trace id %q: %v", id, err)
		}
		u = uuid.New()
	}
	return &Context{
		traceID: u,
		start:   time.Now(),
	}
}

// ID returns the trace id.
func (t *Context) ID() string {
	if t == nil {
		return ""
	}
	return t.traceID.String()
}

// NewSpan creates new span in the parent.
func (t *Context) NewSpan(ctx context.Context, name string, parent *Span) *Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if parent == nil && len(t.spans) > 0 {
		parent = t.spans[0]
	}
	span := &Span{
		t:           t,
		id:          len(t.spans),
		parent:      parent,
		displayName: name,
		start:       time.Now(),
		attrs:       make(map[string]any),
	}
	if log.V(2) {
		clog.Infof(ctx, "new span %s %d<%v", name, span.id, parent)
	}
	t.spans = append(t.spans, span)
	return span
}

// Spans returns span data in the trace context.
func (t *Context) Spans() []SpanData {
	if t == nil {
		return nil
	}
	var data []SpanData
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.spans {
		sd := s.data()
		if sd.Name == "" {
			continue
		}
		data = append(data, sd)
	}
	return data
}

type contextKeyType int

const (
	contextKey contextKeyType = iota
	spanKey
)

// NewContext returns new context with a trace context.
func NewContext(ctx context.Context, t *Context) context.Context {
	return context.WithValue(ctx, contextKey, t)
}

// FromContext returns the trace context in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	t, _ := ctx.Value(contextKey).(*Context)
	return t
}

// NewSpan returns new contexts and span.
// If no trace context, returns nil span.
func NewSpan(ctx context.Context, name string) (context.Context, *Span) {
	t := FromContext(ctx)
	if t == nil {
		return ctx, nil
	}
	parent, _ := ctx.Value(spanKey).(*Span)
	span := t.NewSpan(ctx, name, parent)
	return context.WithValue(ctx, spanKey, span), span
}

// ID returns the trace id.
func ID(ctx context.Context) string {
	return FromContext(ctx).ID()
}

// CurSpan returns current span in the context.
func CurSpan(ctx context.Context) *Span {
	span, ok := ctx.Value(spanKey).(*Span)
	if !ok {
		return nil
	}
	return span
}

// Span is a trace span.
type Span struct {
	t      *Context
	id     int
	parent *Span

	mu          sync.Mutex
	displayName string
	start       time.Time
	end         time.Time
	attrs       map[string]any
	err         error
}

// SetAttr sets attributes in the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Close closes the span with err, which may be nil.
func (s *Span) Close(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = time.Now()
	s.err = err
}

func (s *Span) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.displayName
}

// SpanData is a snapshot of a span.
type SpanData struct {
	Name   string
	ID     int
	Parent int
	Start  time.Time
	End    time.Time
	Attrs  map[string]any
	Err    error
}

// Duration returns duration of the span.
func (sd SpanData) Duration() time.Duration {
	return sd.End.Sub(sd.Start)
}

func (s *Span) data() SpanData {
	if s == nil {
		return SpanData{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.end
	if end.IsZero() {
		end = time.Now()
	}
	parent := -1
	if s.parent != nil {
		parent = s.parent.id
	}
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	return SpanData{
		Name:   s.displayName,
		ID:     s.id,
		Parent: parent,
		Start:  s.start,
		End:    end,
		Attrs:  attrs,
		Err:    s.err,
	}
}

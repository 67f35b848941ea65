// Package trace collects, broadcasts and persists the step events a planner
// emits while it searches.
package trace

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"htnplan/internal/planner"
)

// Recorder keeps every event in memory. It is safe for concurrent use, so
// one recorder can serve several planners.
type Recorder struct {
	mu     sync.Mutex
	events []planner.Event
}

// Emit implements planner.EventSink.
func (r *Recorder) Emit(e planner.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []planner.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]planner.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []planner.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]planner.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k planner.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Fanout forwards each event to every sink in order. Nil sinks are skipped.
type Fanout []planner.EventSink

// Emit implements planner.EventSink.
func (f Fanout) Emit(e planner.Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Filter forwards only the listed kinds to Next.
type Filter struct {
	Next  planner.EventSink
	kinds map[planner.EventKind]bool
}

// NewFilter builds a Filter. With no kinds every event passes.
func NewFilter(next planner.EventSink, kinds ...planner.EventKind) *Filter {
	f := &Filter{Next: next, kinds: make(map[planner.EventKind]bool, len(kinds))}
	for _, k := range kinds {
		f.kinds[k] = true
	}
	return f
}

// Emit implements planner.EventSink.
func (f *Filter) Emit(e planner.Event) {
	if len(f.kinds) > 0 && !f.kinds[e.Kind] {
		return
	}
	f.Next.Emit(e)
}

// Printer writes one line per event, indented by search depth.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer { return &Printer{w: w} }

// Emit implements planner.EventSink.
func (p *Printer) Emit(e planner.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, Format(e))
}

// Format renders an event on one line.
func Format(e planner.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%6d %s%-13s", e.Seq, strings.Repeat("  ", min(e.Depth, 40)), e.Kind)
	switch e.Kind {
	case planner.EventReduced:
		fmt.Fprintf(&sb, " %s via %s[%s] -> %s", e.Task, e.Method, e.Branch, strings.Join(e.Children, " "))
	case planner.EventStateChanged:
		fmt.Fprintf(&sb, " %s", e.Operator)
		if len(e.Deleted) > 0 {
			fmt.Fprintf(&sb, " -%s", strings.Join(e.Deleted, " -"))
		}
		if len(e.Added) > 0 {
			fmt.Fprintf(&sb, " +%s", strings.Join(e.Added, " +"))
		}
	case planner.EventPlanFound:
		fmt.Fprintf(&sb, " cost %s: %s", e.Cost, strings.Join(e.Plan, " "))
	default:
		if e.Task != "" {
			sb.WriteString(" " + e.Task)
		}
	}
	return sb.String()
}

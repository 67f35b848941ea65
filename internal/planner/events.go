package planner

import "fmt"

// EventKind says what a search step did.
type EventKind uint8

const (
	// EventSetGoal is emitted once when the planner is created.
	EventSetGoal EventKind = iota
	// EventTrying marks a candidate task being attempted.
	EventTrying
	// EventReduced marks a method branch rewriting a compound task.
	EventReduced
	// EventStateChanged marks an operator application.
	EventStateChanged
	// EventBacktracking marks a candidate task running out of options.
	EventBacktracking
	// EventPlanFound marks a complete plan.
	EventPlanFound
	// EventLimit marks a search aborted by the recursion limit.
	EventLimit
)

var eventNames = [...]string{
	EventSetGoal:      "set_goal",
	EventTrying:       "trying",
	EventReduced:      "reduced",
	EventStateChanged: "state_changed",
	EventBacktracking: "backtracking",
	EventPlanFound:    "plan_found",
	EventLimit:        "limit",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for i, n := range eventNames {
		if n == s {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event describes one search step for tracing and visualization. Terms are
// pre-rendered so that consumers need no access to the symbol table.
type Event struct {
	Seq     uint64    `json:"seq"`
	Planner string    `json:"planner"`
	Kind    EventKind `json:"kind"`
	Depth   int       `json:"depth"`
	Task    string    `json:"task,omitempty"`

	// EventReduced
	Method   string   `json:"method,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Children []string `json:"children,omitempty"`
	Ordered  bool     `json:"ordered,omitempty"`

	// EventStateChanged
	Operator           string   `json:"operator,omitempty"`
	Deleted            []string `json:"deleted,omitempty"`
	Added              []string `json:"added,omitempty"`
	ProtectionsDeleted []string `json:"protections_deleted,omitempty"`
	ProtectionsAdded   []string `json:"protections_added,omitempty"`

	// EventTrying carries the state changes made so far on this path;
	// EventPlanFound carries the full state the plan produces.
	State []string `json:"state,omitempty"`

	// EventPlanFound
	Plan []string `json:"plan,omitempty"`
	Cost string   `json:"cost,omitempty"`
}

// EventSink receives search events. Emit is called synchronously from the
// planner's step: it may read the planner's state but must not step it.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit implements EventSink.
func (f SinkFunc) Emit(e Event) { f(e) }

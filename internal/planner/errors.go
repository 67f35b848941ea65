package planner

import (
	"errors"
	"fmt"
)

// ErrRecursionLimit is the sentinel for a search aborted because the number
// of live frames exceeded the configured limit.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// LimitError carries the details of a recursion limit abort. It unwraps to
// ErrRecursionLimit.
type LimitError struct {
	Limit int
	Task  string // task being worked on by the deepest frame
	Plans int    // plans found before the abort
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("recursion limit exceeded: more than %d live frames (task %s, %d plans found)", e.Limit, e.Task, e.Plans)
}

func (e *LimitError) Unwrap() error { return ErrRecursionLimit }

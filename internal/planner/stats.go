package planner

import (
	"fmt"
	"sort"
	"strings"
)

// RuleStats counts how often a precondition was evaluated with and without
// producing a binding.
type RuleStats struct {
	Satisfied   int
	Unsatisfied int
}

// Stats accumulates counters over the life of a planner.
type Stats struct {
	Steps      uint64
	Plans      int
	Backtracks int
	Applied    int // operator applications
	Refused    int // applications refused by a protection
	Reductions int
	MaxDepth   int
	Rules      map[string]*RuleStats
}

func newStats() *Stats {
	return &Stats{Rules: make(map[string]*RuleStats)}
}

func (s *Stats) rule(key string, satisfied bool) {
	r, ok := s.Rules[key]
	if !ok {
		r = &RuleStats{}
		s.Rules[key] = r
	}
	if satisfied {
		r.Satisfied++
	} else {
		r.Unsatisfied++
	}
}

// Summary renders the counters, one rule per line in name order.
func (s *Stats) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "steps=%d plans=%d backtracks=%d applied=%d refused=%d reductions=%d max_depth=%d\n",
		s.Steps, s.Plans, s.Backtracks, s.Applied, s.Refused, s.Reductions, s.MaxDepth)
	keys := make([]string, 0, len(s.Rules))
	for k := range s.Rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := s.Rules[k]
		fmt.Fprintf(&sb, "  %s: satisfied=%d unsatisfied=%d\n", k, r.Satisfied, r.Unsatisfied)
	}
	return sb.String()
}

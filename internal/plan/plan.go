package plan

import (
	"slices"
	"strings"

	"htnplan/internal/term"
)

// Plan is an ordered list of ground operator instances with their total cost.
type Plan struct {
	Steps []term.Predicate
	Cost  Cost
}

// New returns an empty plan accumulating into cost. A nil cost selects
// NumericCost.
func New(cost Cost) *Plan {
	if cost == nil {
		cost = NewNumericCost()
	}
	return &Plan{Cost: cost}
}

// AddOperator appends a ground operator instance and adds its cost. The cost
// term is returned so that RemoveOperator can undo it.
func (p *Plan) AddOperator(head term.Predicate, cost term.Term) term.Term {
	p.Steps = append(p.Steps, head)
	p.Cost.Add(cost)
	return cost
}

// RemoveOperator drops the last operator instance and subtracts its cost.
func (p *Plan) RemoveOperator(cost term.Term) {
	if len(p.Steps) == 0 {
		panic("plan: RemoveOperator on empty plan")
	}
	p.Steps = p.Steps[:len(p.Steps)-1]
	p.Cost.Remove(cost)
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.Steps) }

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	return &Plan{Steps: slices.Clone(p.Steps), Cost: p.Cost.Clone()}
}

// Format renders one step per line followed by the cost.
func (p *Plan) Format(names term.Namer) string {
	var sb strings.Builder
	for _, s := range p.Steps {
		sb.WriteString(s.Format(names))
		sb.WriteByte('\n')
	}
	sb.WriteString("cost ")
	sb.WriteString(p.Cost.String())
	return sb.String()
}

// StepStrings renders each step.
func (p *Plan) StepStrings(names term.Namer) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Format(names)
	}
	return out
}

// Cheapest returns the plan with the lowest cost, the first one on ties, or
// nil for an empty slice.
func Cheapest(plans []*Plan) *Plan {
	var best *Plan
	for _, p := range plans {
		if best == nil || p.Cost.Compare(best.Cost) < 0 {
			best = p
		}
	}
	return best
}

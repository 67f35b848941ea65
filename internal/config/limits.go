package config

import (
	"fmt"
	"time"
)

// PlannerLimits bounds a single search.
type PlannerLimits struct {
	RecursionLimit int    `yaml:"recursion_limit" json:"recursion_limit"` // max live search frames
	MaxPlans       int    `yaml:"max_plans" json:"max_plans"`             // 0 = all plans
	StepBudget     int    `yaml:"step_budget" json:"step_budget"`         // 0 = unbounded
	Timeout        string `yaml:"timeout" json:"timeout"`                 // per problem, "" = none
}

// ValidatePlannerLimits checks that planner limits are within acceptable ranges.
func (c *Config) ValidatePlannerLimits() error {
	if c.Planner.RecursionLimit < 1 {
		return fmt.Errorf("planner.recursion_limit must be >= 1")
	}
	if c.Planner.MaxPlans < 0 {
		return fmt.Errorf("planner.max_plans must be >= 0")
	}
	if c.Planner.StepBudget < 0 {
		return fmt.Errorf("planner.step_budget must be >= 0")
	}
	if c.Planner.Timeout != "" {
		if _, err := time.ParseDuration(c.Planner.Timeout); err != nil {
			return fmt.Errorf("planner.timeout: %w", err)
		}
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htnplan/internal/config"
	"htnplan/internal/planner"
)

var (
	travelDomain = filepath.Join("..", "..", "examples", "travel", "domain.yaml")
	commute      = filepath.Join("..", "..", "examples", "travel", "commute.yaml")
	stroll       = filepath.Join("..", "..", "examples", "travel", "stroll.yaml")
	transfer     = filepath.Join("..", "..", "examples", "travel", "transfer.yaml")
)

// execute runs the CLI with a config path that does not exist, so every
// test starts from the defaults.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestPlanAllPlans(t *testing.T) {
	out, err := execute(t, "plan", "-n", "0", travelDomain, commute)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan 1")
	assert.Contains(t, out, "1. (ride home office 3)")
	assert.Contains(t, out, "Plan 2")
	assert.Contains(t, out, "1. (ride home office 5)")
	assert.Contains(t, out, "cheapest: plan 1 (cost 3)")
}

func TestPlanDefaultsToOnePlan(t *testing.T) {
	out, err := execute(t, "plan", travelDomain, transfer)
	require.NoError(t, err)
	assert.Contains(t, out, "cost 9")
	assert.Contains(t, out, "1. (ride home station 2)")
	assert.Contains(t, out, "2. (ride station airport 7)")
	assert.NotContains(t, out, "Plan 2")
}

func TestPlanAxiomPicksWalking(t *testing.T) {
	out, err := execute(t, "plan", "-n", "0", "--stats", travelDomain, stroll)
	require.NoError(t, err)
	assert.Contains(t, out, "1. (walk home park)")
	assert.Contains(t, out, "cost 2")
	assert.Contains(t, out, "travel/direct: satisfied=1")
}

func TestPlanTraceFiltersKinds(t *testing.T) {
	out, err := execute(t, "plan", "--trace", "--kind", "plan_found", travelDomain, stroll)
	require.NoError(t, err)
	assert.Contains(t, out, "plan_found")
	assert.NotContains(t, out, "trying")

	_, err = execute(t, "plan", "--trace", "--kind", "bogus", travelDomain, stroll)
	assert.Error(t, err)
}

func TestPlanRecursionLimit(t *testing.T) {
	dir := t.TempDir()
	dom := filepath.Join(dir, "loop.yaml")
	prob := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(dom, []byte(`
domain: loop
operators:
  - head: noop(X)
methods:
  - head: spin(X)
    branches:
      - tasks:
          - spin(X)
`), 0644))
	require.NoError(t, os.WriteFile(prob, []byte("tasks: spin(/x)\n"), 0644))

	out, err := execute(t, "plan", "--limit", "30", dom, prob)
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrRecursionLimit)
	assert.Contains(t, out, "no plan found")
	assert.Contains(t, out, "search aborted: more than 30 live frames")
}

func TestPlanStepBudget(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("planner:\n  recursion_limit: 100\n  step_budget: 3\n"), 0644))

	out, err := execute(t, "plan", "--config", cfgPath, "-n", "0", travelDomain, commute)
	require.NoError(t, err)
	assert.Contains(t, out, "no plan found")
}

func TestRecordAndInspectTrace(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	t.Setenv("HTN_TRACE_DB", db)

	out, err := execute(t, "plan", "-n", "0", travelDomain, commute)
	require.NoError(t, err)
	var runID string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "trace run ") {
			runID = strings.TrimSpace(strings.TrimPrefix(line, "trace run "))
		}
	}
	require.NotEmpty(t, runID, "output: %s", out)

	out, err = execute(t, "trace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "travel/commute")
	assert.Contains(t, out, "exhausted")

	out, err = execute(t, "trace", "show", runID, "--kind", "plan_found")
	require.NoError(t, err)
	assert.Contains(t, out, "plan_found")
	assert.Contains(t, out, "(ride home office 5)")
	assert.NotContains(t, out, "trying")

	out, err = execute(t, "trace", "show", runID, "--json", "--kind", "set_goal")
	require.NoError(t, err)
	assert.Contains(t, out, `"task":"((travel home office))"`)

	_, err = execute(t, "trace", "rm", runID)
	require.NoError(t, err)
	out, err = execute(t, "trace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestCheck(t *testing.T) {
	out, err := execute(t, "check", travelDomain, commute, stroll)
	require.NoError(t, err)
	assert.Contains(t, out, "domain travel")
	assert.Contains(t, out, "1 (3 branches)")
	assert.Contains(t, out, "commute: 4 atoms, 1 tasks")
	assert.Contains(t, out, "stroll: 3 atoms")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("domain: other\n"), 0644))
	out, err = execute(t, "check", travelDomain, bad)
	require.Error(t, err)
	assert.Contains(t, out, "is for domain other")
}

func TestExport(t *testing.T) {
	out, err := execute(t, "export", travelDomain, commute)
	require.NoError(t, err)
	assert.Contains(t, out, "at(/home).\n")
	assert.Contains(t, out, "souvenir(/office, /badge).\n")

	out, err = execute(t, "export", "--plan", "1", travelDomain, commute)
	require.NoError(t, err)
	assert.Contains(t, out, "at(/office).\n")
	assert.Contains(t, out, "carrying(/badge).\n")
	assert.NotContains(t, out, "at(/home).")

	_, err = execute(t, "export", "--plan", "3", travelDomain, commute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 2 plans found")

	file := filepath.Join(t.TempDir(), "state.mg")
	_, err = execute(t, "export", "-p", "2", "-o", file, travelDomain, commute)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "at(/office).")
}

func TestBatch(t *testing.T) {
	out, err := execute(t, "batch", "-n", "0", "-j", "2", travelDomain, commute, stroll, transfer)
	require.NoError(t, err)
	assert.Contains(t, out, "exhausted=3")
	for _, p := range []string{commute, stroll, transfer} {
		assert.Contains(t, out, p)
	}
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "htn", "config.yaml")
	_, err := execute(t, "--config", path, "--limit", "50", "config", "init")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Planner.RecursionLimit)

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "recursion_limit: 50")

	_, err = execute(t, "--limit", "0", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReplansOnChange(t *testing.T) {
	dir := t.TempDir()
	dom := filepath.Join(dir, "domain.yaml")
	prob := filepath.Join(dir, "problem.yaml")
	for src, dst := range map[string]string{travelDomain: dom, stroll: prob} {
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(dst, data, 0644))
	}

	cfg := config.DefaultConfig()
	cfg.Watch.Debounce = "30ms"
	cfg.Trace.BatchWindow = "0s"
	a := &app{cfg: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- a.runWatch(ctx, out, dom, prob) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching for changes")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "1. (walk home park)")

	data, err := os.ReadFile(transfer)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(prob, data, 0644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "2. (ride station airport 7)")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "changed:")
	assert.Contains(t, out.String(), "plan_found")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

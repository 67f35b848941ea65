package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"htnplan/internal/config"
	"htnplan/internal/domain"
	"htnplan/internal/loader"
	"htnplan/internal/logging"
)

// app holds the global flags and the resolved configuration shared by all
// subcommands.
type app struct {
	configPath string
	verbose    bool
	limit      int
	maxPlans   int
	timeout    time.Duration

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "htn",
		Short: "Hierarchical task network planner",
		Long: `htn plans with JSHOP2-style HTN domains written in YAML.

Domains declare operators, methods and axioms; problems give an initial
state as Mangle facts and a task network to accomplish. Atoms use Mangle
syntax: Variables are capitalized, /names are constants.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", config.DefaultConfigPath, "Config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.IntVar(&a.limit, "limit", 0, "Recursion limit (max live search frames)")
	pf.IntVarP(&a.maxPlans, "max-plans", "n", 0, "Plans to find per problem (0 = all)")
	pf.DurationVar(&a.timeout, "timeout", 0, "Per-problem search timeout")

	root.AddCommand(a.planCmd())
	root.AddCommand(a.checkCmd())
	root.AddCommand(a.batchCmd())
	root.AddCommand(a.watchCmd())
	root.AddCommand(a.exportCmd())
	root.AddCommand(a.traceCmd())
	root.AddCommand(a.configCmd())
	return root
}

// setup loads the config, applies flag overrides and initializes logging.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("limit") {
		cfg.Planner.RecursionLimit = a.limit
	}
	if flags.Changed("max-plans") {
		cfg.Planner.MaxPlans = a.maxPlans
	}
	if flags.Changed("timeout") {
		cfg.Planner.Timeout = a.timeout.String()
		if a.timeout == 0 {
			cfg.Planner.Timeout = ""
		}
	}
	if a.verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Initialize(cfg.Logging.Options()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Boot("htn %s", cmd.Name())
	logging.BootDebug("config loaded from %s: limit=%d max_plans=%d", a.configPath,
		cfg.Planner.RecursionLimit, cfg.Planner.MaxPlans)
	a.cfg = cfg
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (a *app) signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// searchContext additionally applies the per-problem timeout.
func (a *app) searchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if d := a.cfg.GetPlannerTimeout(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

func (a *app) load(domainPath, problemPath string) (*domain.Domain, *loader.Problem, error) {
	d, err := loader.LoadDomain(domainPath)
	if err != nil {
		return nil, nil, err
	}
	p, err := loader.LoadProblem(problemPath, d)
	if err != nil {
		return nil, nil, err
	}
	return d, p, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

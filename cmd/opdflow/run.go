package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"opdflow/internal/actor"
	"opdflow/internal/collector"
	"opdflow/internal/config"
	"opdflow/internal/coordinator"
	"opdflow/internal/data"
	api "opdflow/internal/http"
	"opdflow/internal/opd"
	"opdflow/internal/progress"
	"opdflow/internal/scenario"
)

type runOptions struct {
	output    string
	workers   int
	headless  bool
	artifacts string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios and report the outcome",
		Long: `Run the named scenarios, or every built-in scenario when none is named.

Exit codes:
  0 - every scenario passed and every threshold held
  1 - a scenario failed or a threshold was violated
  2 - usage or configuration error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, root, opts, args)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func (o *runOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.output, "output", "o", "text", "output format: text, json")
	fs.IntVarP(&o.workers, "workers", "w", 0, "scenarios run in parallel (overrides execution.workers)")
	fs.BoolVar(&o.headless, "headless", true, "run the browser headless (overrides browser.headless)")
	fs.StringVar(&o.artifacts, "artifacts", "", "failure artifact directory (overrides artifacts.dir)")
}

// apply overrides suite settings with the flags the user set.
func (o *runOptions) apply(fs *pflag.FlagSet, s *config.Suite) {
	if o.workers > 0 {
		s.Execution.Workers = o.workers
	}
	if fs.Changed("headless") {
		s.Browser.Headless = o.headless
	}
	if o.artifacts != "" {
		s.Artifacts.Dir = o.artifacts
	}
}

// buildScenarios assembles the named scenarios, handing each one the next
// doctor account. Every unknown name or missing target is reported. With
// no names, scenarios whose targets are not configured are skipped with
// a warning.
func buildScenarios(reg *opd.Registry, names []string, s *config.Suite, accounts *data.Accounts, client *http.Client, debug *api.DebugLogger, logger *zap.Logger) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		var skipped []error
		names, skipped = reg.Runnable(s)
		for _, err := range skipped {
			logger.Warn("scenario skipped", zap.Error(err))
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no scenario has its targets configured: %w", errors.Join(skipped...))
		}
	}
	var (
		out     []scenario.Scenario
		errList []error
	)
	for _, name := range names {
		sc, err := reg.Build(name, opd.Env{Suite: s, Doctor: accounts.Next(), Client: client, Debug: debug})
		if err != nil {
			errList = append(errList, err)
			continue
		}
		out = append(out, sc)
	}
	return out, errors.Join(errList...)
}

func runScenarios(cmd *cobra.Command, root *rootOptions, opts *runOptions, names []string) error {
	if opts.output != "text" && opts.output != "json" {
		return usageError(fmt.Errorf("--output must be 'text' or 'json', got %q", opts.output))
	}
	suite, err := root.suite(false)
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), suite)

	logger, err := root.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	accounts, err := data.LoadAccounts(suite)
	if err != nil {
		return usageError(err)
	}
	var debug *api.DebugLogger
	if root.verbose {
		debug = api.NewDebugLogger(cmd.ErrOrStderr())
	}
	client := &http.Client{Timeout: 30 * time.Second}
	scenarios, err := buildScenarios(opd.NewRegistry(), names, suite, accounts, client, debug, logger)
	if err != nil {
		return usageError(err)
	}

	launcher, err := actor.Launch(suite, logger)
	if err != nil {
		return usageError(err)
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			logger.Warn("closing browser", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coll := collector.NewCollector()
	prog := progress.NewProgress(coll, root.quiet)
	prog.SetOutput(cmd.ErrOrStderr())
	prog.Printf("opdflow starting: %d scenario(s), %d worker(s)", len(scenarios), suite.Execution.Workers)

	orch := scenario.NewOrchestrator(suite, launcher, coll, logger)
	coord := coordinator.NewCoordinator(orch, suite.Execution.Workers, coll, logger)
	prog.Track(coord)

	prog.Start()
	reports := coord.Run(ctx, scenarios)
	prog.Stop()
	coll.Close()

	if ctx.Err() != nil {
		prog.Print("Interrupted, remaining scenarios were not run")
	}

	metrics := coll.Compute()
	thresholds := suite.Thresholds.Check(metrics)
	if err := writeResults(cmd.OutOrStdout(), opts.output, reports, metrics, thresholds); err != nil {
		return usageError(err)
	}
	return verdict(reports, thresholds)
}

// runResult is the JSON document printed by run --output json.
type runResult struct {
	Scenarios []scenario.JSONReport `json:"scenarios"`
	Metrics   collector.JSONMetrics `json:"metrics"`
}

func writeResults(w io.Writer, format string, reports []*scenario.Report, m *collector.Metrics, thresholds *collector.ThresholdResults) error {
	if format == "json" {
		out := runResult{Scenarios: make([]scenario.JSONReport, 0, len(reports))}
		for _, r := range reports {
			out.Scenarios = append(out.Scenarios, r.ToJSON())
		}
		out.Metrics = collector.ToJSON(m, thresholds)
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}
	scenario.WriteText(w, reports)
	fmt.Fprintln(w)
	collector.FormatText(w, m, thresholds)
	return nil
}

// verdict maps the run outcome to an exit error, or nil when it passed.
func verdict(reports []*scenario.Report, thresholds *collector.ThresholdResults) error {
	var failed []string
	for _, r := range reports {
		if !r.Passed {
			failed = append(failed, r.Scenario)
		}
	}
	if len(failed) > 0 {
		return failedError(fmt.Errorf("%d of %d scenario(s) failed: %v", len(failed), len(reports), failed))
	}
	if thresholds != nil && !thresholds.Passed {
		return failedError(fmt.Errorf("threshold check failed: %d violation(s)", len(thresholds.Violations())))
	}
	return nil
}

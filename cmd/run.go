package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/session"
	"github.com/xkilldash9x/uiharness/internal/observability"
	"github.com/xkilldash9x/uiharness/internal/scenario"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrScenariosFailed is returned by run when at least one scenario failed.
var ErrScenariosFailed = errors.New("scenarios failed")

func newRunCommand(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "run <script.yaml>...",
		Short: "Run scenario scripts, each in its own browser context",
		Long: `Run loads every scenario script and runs them concurrently, one
execution context (engine, browser and page) per script. A failed scenario
leaves a screenshot in the artifacts directory. The command exits non-zero
when any scenario fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), args, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the summary as JSON")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().Int("concurrency", 0, "scenarios to run at once (overrides runner.concurrency)")
	cmd.Flags().String("browser", "", "browser variant: chromium, firefox or webkit")
	cmd.Flags().String("headless", "", "run the browser headless (true/false)")
	_ = a.v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	_ = a.v.BindPFlag("runner.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = a.v.BindPFlag("browser", cmd.Flags().Lookup("browser"))
	_ = a.v.BindPFlag("headless", cmd.Flags().Lookup("headless"))
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, paths []string, jsonOut bool) error {
	cfg := a.cfg
	scripts := make([]*scenario.Script, 0, len(paths))
	for _, p := range paths {
		s, err := scenario.LoadScript(p)
		if err != nil {
			return err
		}
		scripts = append(scripts, s)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := observability.ServeMetrics(metricsCtx, cfg.Metrics.Addr, reg, a.logger); err != nil {
				a.logger.Warn("Metrics endpoint failed.", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
			}
		}()
	}

	driver, err := a.newDriver(cfg, a.logger)
	if err != nil {
		return err
	}
	registry := session.NewRegistry(driver,
		session.WithVariant(cfg.Variant()),
		session.WithLaunchOptions(cfg.LaunchOptions()),
		session.WithLaunchRate(cfg.Driver.LaunchRate, cfg.Driver.LaunchBurst),
		session.WithRegistryLogger(a.logger),
		session.WithLifecycleRecorder(metrics))
	defer registry.ReleaseAll()

	runner := scenario.NewRunner(scenario.NewHooks(registry, cfg.Artifacts, a.logger),
		scenario.WithConcurrency(cfg.Runner.Concurrency),
		scenario.WithBaseURL(cfg.BaseURL),
		scenario.WithRunnerLogger(a.logger),
		scenario.WithExecutorOptions(
			interact.WithPolicy(cfg.RetryPolicy()),
			interact.WithTimeouts(interact.Timeouts{
				Wait:       cfg.Wait.Timeout,
				Navigation: cfg.Wait.NavigationTimeout,
				Action:     cfg.Wait.ActionTimeout,
			}),
			interact.WithLogger(a.logger),
			interact.WithRecorder(metrics),
		))

	a.logger.Info("Running scenarios.",
		zap.Int("scenarios", len(scripts)),
		zap.Int("concurrency", cfg.Runner.Concurrency),
		zap.String("driver", driver.Name()))
	results := runner.Run(ctx, scripts)

	sum := summarize(results)
	if jsonOut {
		err = writeJSONSummary(out, sum)
	} else {
		err = writeTextSummary(out, sum)
	}
	if err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, sum.Failed, len(results))
	}
	return nil
}

// summary is the run report.
type summary struct {
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Results []scenario.Result `json:"results"`
}

func summarize(results []scenario.Result) summary {
	s := summary{Results: results}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

func writeJSONSummary(w io.Writer, s summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func writeTextSummary(w io.Writer, s summary) error {
	for _, r := range s.Results {
		d := r.Duration.Round(time.Millisecond)
		if r.Passed {
			if _, err := fmt.Fprintf(w, "PASS  %s (%s)\n", r.Name, d); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "FAIL  %s (%s)\n      %s\n", r.Name, d, r.Error); err != nil {
			return err
		}
		if r.Screenshot != "" {
			if _, err := fmt.Fprintf(w, "      screenshot: %s\n", r.Screenshot); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed\n", s.Passed, s.Failed)
	return err
}

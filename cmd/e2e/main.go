// Package main provides the e2e test runner CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/c360studio/semplan/test/e2e/config"
	"github.com/c360studio/semplan/test/e2e/scenarios"
)

// maxErrorRunes bounds the error text shown per failed scenario.
const maxErrorRunes = 80

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// scenarioList returns every scenario in run order.
func scenarioList(cfg *config.Config) []scenarios.Scenario {
	return []scenarios.Scenario{
		scenarios.NewGenerateScenario(cfg),
		scenarios.NewChatScenario(cfg),
	}
}

func rootCmd() *cobra.Command {
	var (
		httpURL       string
		mockURL       string
		ownerID       string
		outputJSON    bool
		timeout       time.Duration
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "e2e [scenario]",
		Short: "Run semplan e2e tests",
		Long: `Run end-to-end tests against a running semplan server.

Available scenarios:
  generate  - Generates a document and checks storage and versions
  chat      - Refines a document through chat and regeneration
  all       - Run all scenarios (default)

Examples:
  e2e                                  # Run all scenarios
  e2e chat                             # Run specific scenario
  e2e --json                           # Output results as JSON
  e2e --url http://host:8080           # Custom semplan URL
  e2e --mock-llm ""                    # Skip mock-llm call checks
`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) > 0 {
				name = args[0]
			}

			cfg := &config.Config{
				HTTPBaseURL:    httpURL,
				MockLLMURL:     mockURL,
				OwnerID:        ownerID,
				CommandTimeout: timeout,
				SetupTimeout:   config.DefaultSetupTimeout,
				StageTimeout:   timeout,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), globalTimeout)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd.OutOrStdout(), cfg, name, outputJSON)
		},
	}

	cmd.Flags().StringVar(&httpURL, "url", config.DefaultHTTPURL, "semplan server URL")
	cmd.Flags().StringVar(&mockURL, "mock-llm", config.DefaultMockLLMURL, "mock-llm URL (empty skips call checks)")
	cmd.Flags().StringVar(&ownerID, "owner", config.E2EOwnerID, "Owner ID for created documents")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultStageTimeout, "Per-stage timeout")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 10*time.Minute, "Global timeout for all scenarios")

	cmd.AddCommand(listCmd())

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range scenarioList(config.DefaultConfig()) {
				fmt.Fprintf(tw, "%s\t%s\n", s.Name(), s.Description())
			}
			tw.Flush()
		},
	}
}

// report is what one run of the runner produced.
type report struct {
	Target    string           `json:"target"`
	Started   time.Time        `json:"started"`
	Elapsed   time.Duration    `json:"elapsed"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []scenarioReport `json:"scenarios"`
}

// scenarioReport condenses a scenario result to the document it worked on
// and what happened to it.
type scenarioReport struct {
	Name        string            `json:"name"`
	Passed      bool              `json:"passed"`
	Elapsed     time.Duration     `json:"elapsed"`
	DocumentID  string            `json:"document_id,omitempty"`
	Versions    int               `json:"versions,omitempty"`
	Changed     []string          `json:"changed_components,omitempty"`
	LLMCalls    int               `json:"llm_calls,omitempty"`
	FailedStage string            `json:"failed_stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	Result      *scenarios.Result `json:"result"`
}

// run executes the named scenario, or all of them, and writes the report
// to out. It fails when any scenario failed or the name is unknown.
func run(ctx context.Context, out io.Writer, cfg *config.Config, name string, asJSON bool) error {
	toRun, err := selectScenarios(cfg, name)
	if err != nil {
		return err
	}

	rep := &report{Target: cfg.HTTPBaseURL, Started: time.Now()}
	for _, sc := range toRun {
		if ctx.Err() != nil {
			break
		}
		if !asJSON {
			fmt.Fprintf(out, "running %s: %s\n", sc.Name(), sc.Description())
		}
		sr := summarize(runScenario(ctx, sc))
		if sr.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
		rep.Scenarios = append(rep.Scenarios, sr)
	}
	rep.Elapsed = time.Since(rep.Started)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	} else {
		writeText(out, rep)
	}

	switch {
	case ctx.Err() != nil && len(rep.Scenarios) < len(toRun):
		return fmt.Errorf("run interrupted after %d of %d scenarios: %w", len(rep.Scenarios), len(toRun), ctx.Err())
	case rep.Failed > 0:
		return fmt.Errorf("%d of %d scenarios failed", rep.Failed, len(rep.Scenarios))
	}
	return nil
}

func selectScenarios(cfg *config.Config, name string) ([]scenarios.Scenario, error) {
	all := scenarioList(cfg)
	if name == "all" {
		return all, nil
	}
	for _, sc := range all {
		if sc.Name() == name {
			return []scenarios.Scenario{sc}, nil
		}
	}
	return nil, fmt.Errorf("unknown scenario: %s", name)
}

// runScenario runs setup, execute and teardown. Setup and execute errors
// become a failed result; a teardown error is only a warning.
func runScenario(ctx context.Context, sc scenarios.Scenario) *scenarios.Result {
	if err := sc.Setup(ctx); err != nil {
		return failed(sc.Name(), "setup", err)
	}

	result, err := sc.Execute(ctx)
	if err != nil {
		result = failed(sc.Name(), "execute", err)
	}

	if err := sc.Teardown(ctx); err != nil {
		result.AddWarning(fmt.Sprintf("teardown: %v", err))
	}
	return result
}

func failed(name, step string, err error) *scenarios.Result {
	result := scenarios.NewResult(name)
	result.AddStage(step, false, 0, err.Error())
	result.Error = fmt.Sprintf("%s failed: %v", step, err)
	result.AddError(result.Error)
	result.Complete()
	return result
}

func summarize(r *scenarios.Result) scenarioReport {
	sr := scenarioReport{
		Name:     r.ScenarioName,
		Passed:   r.Success,
		Elapsed:  r.Duration,
		Error:    r.Error,
		Warnings: r.Warnings,
		Result:   r,
	}
	sr.DocumentID, _ = r.GetDetailString("document_id")
	sr.Versions, _ = metricInt(r.Metrics, "versions")
	sr.LLMCalls, _ = metricInt(r.Metrics, "llm_calls")
	for _, key := range []string{"generated_components", "chat_changed", "regenerate_changed"} {
		names, _ := r.GetDetail(key)
		sr.Changed = appendUnique(sr.Changed, names)
	}
	for _, st := range r.Stages {
		if !st.Success {
			sr.FailedStage = st.Name
			break
		}
	}
	return sr
}

// metricInt reads a count metric. Values decoded from JSON arrive as
// float64.
func metricInt(metrics map[string]any, key string) (int, bool) {
	switch v := metrics[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func appendUnique(dst []string, names any) []string {
	list, _ := names.([]string)
	for _, n := range list {
		seen := false
		for _, d := range dst {
			if d == n {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, n)
		}
	}
	return dst
}

func writeText(out io.Writer, rep *report) {
	fmt.Fprintf(out, "\nsemplan e2e against %s\n\n", rep.Target)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tRESULT\tTIME\tDOCUMENT\tVERSIONS\tCHANGED\tLLM CALLS")
	for _, sr := range rep.Scenarios {
		result := "pass"
		if !sr.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sr.Name,
			result,
			sr.Elapsed.Round(time.Millisecond),
			orDash(sr.DocumentID),
			countOrDash(sr.Versions),
			countOrDash(len(sr.Changed)),
			countOrDash(sr.LLMCalls))
	}
	tw.Flush()

	for _, sr := range rep.Scenarios {
		if len(sr.Changed) > 0 {
			fmt.Fprintf(out, "\n%s changed: %s", sr.Name, truncate(strings.Join(sr.Changed, ", "), maxErrorRunes))
		}
		for _, w := range sr.Warnings {
			fmt.Fprintf(out, "\n%s warning: %s", sr.Name, truncate(w, maxErrorRunes))
		}
		if !sr.Passed {
			fmt.Fprintf(out, "\n%s failed at %s: %s", sr.Name, orDash(sr.FailedStage), truncate(sr.Error, maxErrorRunes))
		}
	}

	fmt.Fprintf(out, "\n\n%d passed, %d failed in %s\n", rep.Passed, rep.Failed, rep.Elapsed.Round(time.Millisecond))
	if rep.Failed > 0 {
		fmt.Fprintln(out, "run with --json for stage details")
	}
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func countOrDash(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/harness"
	"github.com/roach88/reflow/internal/journal"
	"github.com/roach88/reflow/internal/state"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Record string // journal path, empty to skip recording
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single scenario and print every observable step: dispatches
entering the queue, events reaching their handlers, commits with the
keys they changed, invalidation waves, recomputes and watcher
notifications.

With --record, every commit is also appended to a SQLite journal that
the replay command can check later.

Exit codes:
  0 - scenario ran and its assertions passed
  1 - scenario ran but assertions failed, or the run itself failed
  2 - command error (unreadable scenario, journal cannot be opened)

Examples:
  reflow trace scenarios/counter.yaml
  reflow trace scenarios/counter.yaml --record run.db
  reflow trace scenarios/counter.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", "append commits to a SQLite journal at this path")

	return cmd
}

func runTrace(opts *TraceOptions, scenarioFile string, cmd *cobra.Command) error {
	scenario, err := harness.Load(scenarioFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading scenario", err)
	}

	log := opts.logger(cmd.ErrOrStderr())
	runOpts := []harness.Option{harness.WithLogger(log)}

	if opts.Record != "" {
		j, err := journal.Open(opts.Record)
		if err != nil {
			return WrapExitError(ExitCommandError, "opening journal", err)
		}
		defer j.Close()
		runOpts = append(runOpts, harness.WithRecorder(j))
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s did not run", scenario.Name), err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, scenario.Name, result)
}

// outputTraceJSON emits the canonical run snapshot, the same bytes the
// golden files hold.
func outputTraceJSON(cmd *cobra.Command, result *harness.Result) error {
	data, err := harness.Snapshot(result).MarshalCanonical()
	if err != nil {
		return WrapExitError(ExitCommandError, "marshaling trace", err)
	}

	response := CLIResponse{Status: "ok", Data: json.RawMessage(data)}
	if !result.Pass {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "scenario_failed",
			Message: fmt.Sprintf("%d assertion(s) failed", len(result.Failures)),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion(s) failed", len(result.Failures)))
	}
	return nil
}

// outputTraceText prints the trace as a timeline.
func outputTraceText(cmd *cobra.Command, name string, result *harness.Result) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Scenario: %s\n", name)
	fmt.Fprintf(w, "Result: %s (version %d)\n", passStatus(result.Pass), result.Final.Version())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	if len(result.Trace) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for i, ev := range result.Trace {
			formatTraceEvent(w, i, ev)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Final State ===")
	fmt.Fprintf(w, "  %s\n", renderValue(result.Final.Root()))

	if !result.Pass {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Failures ===")
		for _, f := range result.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion(s) failed", len(result.Failures)))
	}
	return nil
}

// formatTraceEvent prints one timeline line. The index stands in for a
// sequence number; trace positions are stable across runs.
func formatTraceEvent(w io.Writer, i int, ev harness.TraceEvent) {
	switch ev.Type {
	case harness.TraceEnqueue:
		line := fmt.Sprintf("  [%d] ENQUEUE %s%s", i, ev.Event, renderArgs(ev.Args))
		if ev.Defer != "" {
			line += " defer=" + ev.Defer
		}
		fmt.Fprintln(w, line)
	case harness.TraceHandler:
		fmt.Fprintf(w, "  [%d] HANDLER %s%s\n", i, ev.Event, renderArgs(ev.Args))
	case harness.TraceCommit:
		fmt.Fprintf(w, "  [%d] COMMIT %s v%d keys=[%s]\n", i, ev.Event, ev.Version, strings.Join(ev.Keys, " "))
	case harness.TraceEffect:
		fmt.Fprintf(w, "  [%d] EFFECT %s -> %s%s\n", i, ev.Event, ev.Target, renderArgs(ev.Args))
	case harness.TraceInvalidate:
		fmt.Fprintf(w, "  [%d] INVALIDATE keys=[%s]\n", i, strings.Join(ev.Keys, " "))
	case harness.TraceRecompute:
		fmt.Fprintf(w, "  [%d] RECOMPUTE %s = %s\n", i, ev.Sub, renderValue(ev.Value))
	case harness.TraceNotify:
		fmt.Fprintf(w, "  [%d] NOTIFY %s = %s\n", i, ev.Sub, renderValue(ev.Value))
	case harness.TraceError:
		fmt.Fprintf(w, "  [%d] ERROR %s: %s\n", i, ev.Event, ev.Error)
	default:
		fmt.Fprintf(w, "  [%d] %s\n", i, strings.ToUpper(ev.Type))
	}
}

// renderArgs formats dispatch args as " (a, b)", empty for none.
func renderArgs(args []state.Value) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderValue(a)
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// renderValue formats a value as canonical JSON for display.
func renderValue(v state.Value) string {
	data, err := state.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// passStatus returns a human-readable pass/fail marker.
func passStatus(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

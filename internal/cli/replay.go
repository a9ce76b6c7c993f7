package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/harness"
	"github.com/roach88/reflow/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayDivergence is one journal mismatch in the report.
type ReplayDivergence struct {
	Seq   int64  `json:"seq"`
	Event string `json:"event"`
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

// ReplayReport holds the outcome of checking a journal against a
// scenario's handler catalog.
type ReplayReport struct {
	Scenario    string             `json:"scenario"`
	Journal     string             `json:"journal"`
	Replayed    int                `json:"replayed"`
	Clean       bool               `json:"clean"`
	Divergences []ReplayDivergence `json:"divergences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Re-run a journal and verify determinism",
		Long: `Re-dispatch every entry of a recorded journal against a fresh engine
built from the scenario's handlers and initial state, comparing the
logical clock, snapshot version and state fingerprint after each event
against what the journal recorded.

A clean replay means the scenario still produces the exact history the
journal holds. Divergences usually mean the scenario file changed
since the journal was recorded.

Exit codes:
  0 - replay reproduced the journal exactly
  1 - one or more divergences
  2 - command error (journal not found, scenario does not load)

Examples:
  reflow trace scenarios/counter.yaml --record run.db
  reflow replay scenarios/counter.yaml --db run.db
  reflow replay scenarios/counter.yaml --db run.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, scenarioFile string, cmd *cobra.Command) error {
	// Opening a SQLite path creates the file, so check existence first
	// to keep a typo from becoming an empty clean replay.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	scenario, err := harness.Load(scenarioFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading scenario", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer j.Close()

	log := opts.logger(cmd.ErrOrStderr())
	eng, err := harness.NewReplayEngine(scenario, harness.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "building replay engine", err)
	}
	defer eng.Close()

	res, err := journal.Replay(cmd.Context(), j, eng)
	if err != nil {
		return WrapExitError(ExitCommandError, "replaying journal", err)
	}

	report := ReplayReport{
		Scenario:    scenario.Name,
		Journal:     opts.Database,
		Replayed:    res.Replayed,
		Clean:       res.Clean(),
		Divergences: make([]ReplayDivergence, 0, len(res.Divergences)),
	}
	for _, d := range res.Divergences {
		report.Divergences = append(report.Divergences, ReplayDivergence{
			Seq:   d.Seq,
			Event: d.Event.ID,
			Field: d.Field,
			Want:  d.Want,
			Got:   d.Got,
		})
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, report, res)
	}
	return outputReplayText(cmd, report, res)
}

// outputReplayJSON outputs the replay report as JSON.
func outputReplayJSON(cmd *cobra.Command, report ReplayReport, res journal.Result) error {
	response := CLIResponse{
		Status: "ok",
		Data:   report,
	}
	if !report.Clean {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "replay_divergence",
			Message: res.Summary(),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !report.Clean {
		return NewExitError(ExitFailure, res.Summary())
	}
	return nil
}

// outputReplayText outputs the replay report as text.
func outputReplayText(cmd *cobra.Command, report ReplayReport, res journal.Result) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay: %s against %s\n", report.Scenario, report.Journal)

	if report.Clean {
		fmt.Fprintf(w, "✓ %s\n", res.Summary())
		return nil
	}

	fmt.Fprintf(w, "✗ %s\n", res.Summary())
	for _, d := range res.Divergences {
		fmt.Fprintf(w, "  %s\n", d.String())
	}
	return NewExitError(ExitFailure, res.Summary())
}

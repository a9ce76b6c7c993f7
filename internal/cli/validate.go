package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/harness"
)

// FileValidation is the validation outcome for one scenario file.
type FileValidation struct {
	File   string                    `json:"file"`
	Valid  bool                      `json:"valid"`
	Errors []harness.ValidationError `json:"errors,omitempty"`
}

// ValidationReport aggregates validation across all requested files.
type ValidationReport struct {
	Valid   bool             `json:"valid"`
	Checked int              `json:"checked"`
	Failed  int              `json:"failed"`
	Files   []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Check scenario files without running them",
		Long: `Check scenario files against the embedded schema and the semantic
rules: dispatched events name declared handlers, derived subscriptions
name declared inputs, and assertions reference things the run will
produce.

Exit codes:
  0 - all files valid
  1 - one or more files invalid
  2 - command error (unreadable file)

Examples:
  reflow validate scenarios/counter.yaml
  reflow validate scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	report := ValidationReport{
		Valid: true,
		Files: make([]FileValidation, 0, len(paths)),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			_ = formatter.Error("read_error", err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("reading %s", path), err)
		}

		formatter.VerboseLog("Checking %s", path)

		fv := FileValidation{File: path, Valid: true}
		if _, err := harness.Parse(path, data); err != nil {
			fv.Valid = false
			fv.Errors = violationsFrom(err)
			report.Valid = false
			report.Failed++
		}
		report.Checked++
		report.Files = append(report.Files, fv)
	}

	return outputValidationReport(formatter, report)
}

// violationsFrom flattens a Parse error into per-violation entries.
// Schema errors already carry a violation list; semantic and decode
// errors become a single entry without position information.
func violationsFrom(err error) []harness.ValidationError {
	var schemaErr *harness.SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Errors
	}
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		msg = inner.Error()
	}
	return []harness.ValidationError{{Message: msg}}
}

// outputValidationReport prints the report and maps failures to exit
// code 1.
func outputValidationReport(formatter *OutputFormatter, report ValidationReport) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: report}
		if !report.Valid {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "invalid_scenario",
				Message: fmt.Sprintf("%d of %d files invalid", report.Failed, report.Checked),
			}
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		if !report.Valid {
			return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d of %d files", report.Failed, report.Checked))
		}
		return nil
	}

	// Text format
	for _, fv := range report.Files {
		if fv.Valid {
			fmt.Fprintf(formatter.Writer, "✓ %s\n", fv.File)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✗ %s\n", fv.File)
		for _, v := range fv.Errors {
			fmt.Fprintf(formatter.Writer, "    %s\n", v.Error())
		}
	}

	if !report.Valid {
		fmt.Fprintf(formatter.Writer, "\n%d of %d files invalid\n", report.Failed, report.Checked)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d of %d files", report.Failed, report.Checked))
	}
	return nil
}

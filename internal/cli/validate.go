package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/validate"
)

// ValidationReport is the result of validating a document.
type ValidationReport struct {
	Valid    bool                       `json:"valid"`
	Holders  int                        `json:"holders"`
	Rounds   int                        `json:"rounds"`
	Errors   []validate.ValidationError `json:"errors,omitempty"`
	Warnings []lineage.Issue            `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Validate a cap table document",
		Long: `Validate a cap table document without contacting the computation service.

Checks the document structure, holder references and every round's business
rules, then audits pro-rata allocations against the grants that govern them.
Lineage findings are reported as warnings and never fail validation.

Exit codes:
  0 - Document valid (warnings may be present)
  1 - One or more validation errors
  2 - Command error (missing file, malformed document)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.start(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(opts, formatter, path)
	if err != nil {
		return err
	}

	doc := sess.Snapshot()
	report := ValidationReport{
		Holders:  len(doc.Holders),
		Rounds:   len(doc.Rounds),
		Errors:   sess.DocumentErrors(),
		Warnings: sess.Audit(),
	}
	report.Valid = len(report.Errors) == 0
	formatter.VerboseLog("Validated %d round(s): %d error(s), %d warning(s)",
		report.Rounds, len(report.Errors), len(report.Warnings))

	if !report.Valid {
		return outputValidationErrors(formatter, report)
	}
	return outputValidateSuccess(formatter, report)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, report ValidationReport) error {
	if formatter.JSON() {
		return formatter.Success(report)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Document valid (%d holders, %d rounds)\n", report.Holders, report.Rounds)
	writeWarnings(formatter, report.Warnings)
	return nil
}

// outputValidationErrors outputs the failed report. Validation failures
// exit with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, report ValidationReport) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(report.Errors)))

	if formatter.JSON() {
		first := report.Errors[0]
		if err := formatter.Report(CLIResponse{
			Status: "error",
			Data:   report,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ Validation failed (%d error(s), %d warning(s))\n", len(report.Errors), len(report.Warnings))
	fmt.Fprintln(w)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	writeWarnings(formatter, report.Warnings)
	return failure
}

func writeWarnings(formatter *OutputFormatter, issues []lineage.Issue) {
	if len(issues) == 0 {
		return
	}
	w := formatter.Writer
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Warnings:")
	for _, issue := range issues {
		fmt.Fprintf(w, "  [%s] %s: %s\n", issue.Kind, issue.Location, issue.Message)
	}
}

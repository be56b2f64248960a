package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/compute"
	"github.com/roach88/captable/internal/session"
)

// CheckResult is the computation service's verdict on a document.
type CheckResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	LocalErrors int      `json:"local_errors"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <document>",
		Short: "Submit a document to the computation service",
		Long: `Submit a document to the external computation service and report its verdict.

The service URL comes from --service-url, CAPTABLE_SERVICE_URL or the
service.url key of the config file. Errors returned by the service are
printed verbatim. Any transport failure is reported as a single generic
message; the document is never modified.

Exit codes:
  0 - Service accepted the document
  1 - Service rejected the document or could not be reached
  2 - Command error (missing file, no service configured)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.start(cmd)
	if err != nil {
		return err
	}
	cfg := opts.cfg
	if cfg.ServiceURL == "" {
		return commandError(formatter, ErrCodeNoService,
			"no computation service configured (set --service-url or CAPTABLE_SERVICE_URL)", nil)
	}

	client, err := compute.New(compute.Config{
		BaseURL:         cfg.ServiceURL,
		Timeout:         cfg.ServiceTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, compute.WithLogger(opts.log))
	if err != nil {
		return commandError(formatter, ErrCodeConfig, err.Error(), nil)
	}

	sess, err := openSession(opts, formatter, path, session.WithChecker(client))
	if err != nil {
		return err
	}

	local := len(sess.DocumentErrors())
	if local > 0 {
		opts.log.Warn().Int("errors", local).Str("document", path).Msg("submitting a document with local validation errors")
	}

	verdict, err := sess.Check(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeUnavailable, compute.GenericFailureMessage, nil)
		return WrapExitError(ExitFailure, ErrCodeUnavailable+": computation service unavailable", err)
	}

	result := CheckResult{Valid: verdict.Valid, Errors: verdict.Errors, LocalErrors: local}
	if !result.Valid {
		return outputCheckRejected(formatter, result)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, "✓ Document accepted by the computation service")
	return nil
}

func outputCheckRejected(formatter *OutputFormatter, result CheckResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("document rejected with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		if err := formatter.Report(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeRejected, Message: "document rejected by the computation service"},
		}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Document rejected by the computation service")
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
	return failure
}

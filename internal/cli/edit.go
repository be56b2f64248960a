package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/session"
	"github.com/roach88/captable/internal/validate"
)

// EditResult reports the effects of an edit command.
type EditResult struct {
	Output     string                     `json:"output"`
	Revision   int64                      `json:"revision"`
	Summary    string                     `json:"summary"`
	Propagated []string                   `json:"propagated,omitempty"`
	Degraded   bool                       `json:"degraded,omitempty"`
	Errors     []validate.ValidationError `json:"errors,omitempty"`
}

// EditOptions holds flags shared by the editing commands.
type EditOptions struct {
	*RootOptions
	Output string // defaults to the input document
	Round  int
	Holder string
}

func (o *EditOptions) outputPath(input string) string {
	if o.Output != "" {
		return o.Output
	}
	return input
}

func addEditFlags(cmd *cobra.Command, opts *EditOptions, withRound bool) {
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the edited document here instead of in place")
	if !withRound {
		return
	}
	cmd.Flags().IntVar(&opts.Round, "round", 0, "round index (0-based)")
	cmd.Flags().StringVar(&opts.Holder, "holder", "", "holder name")
	_ = cmd.MarkFlagRequired("round")
	_ = cmd.MarkFlagRequired("holder")
}

// NewExerciseCommand creates the exercise command.
func NewExerciseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exercise <document>",
		Short: "Toggle a holder's pro-rata exercise in a round",
		Long: `Toggle a holder's pro-rata exercise in a round.

If the holder has no allocation in the round, a full exercise of their most
recent earlier grant is appended. If an allocation exists it is removed.

Examples:
  captable exercise cap.json --round 1 --holder Acme
  captable exercise cap.json --round 1 --holder Acme -o edited.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd, func(sess *session.Session) (session.Outcome, string, error) {
				out, err := sess.ToggleExercise(opts.Round, opts.Holder)
				if err != nil {
					return out, "", err
				}
				round := sess.Snapshot().Rounds[opts.Round]
				if _, ok := round.AllocationIndex(opts.Holder); ok {
					return out, fmt.Sprintf("Exercised %s's pro-rata right in round %d (%s)", opts.Holder, opts.Round, round.Name), nil
				}
				return out, fmt.Sprintf("Removed %s's allocation from round %d (%s)", opts.Holder, opts.Round, round.Name), nil
			})
		},
	}

	addEditFlags(cmd, opts, true)
	return cmd
}

// AllocateOptions holds flags for the allocate command.
type AllocateOptions struct {
	EditOptions
	Exercise   string
	Amount     string
	Percentage string
}

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AllocateOptions{EditOptions: EditOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "allocate <document>",
		Short: "Set the exercise parameters of a pro-rata allocation",
		Long: `Set the exercise parameters of a holder's pro-rata allocation in a round.

The allocation's pro-rata type and percentage are refreshed from the grant
that governs it. An allocation with no earlier grant is still edited and a
warning is printed.

Examples:
  captable allocate cap.json --round 1 --holder Acme --exercise full
  captable allocate cap.json --round 1 --holder Acme --exercise partial --percentage 0.1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(opts, args[0], cmd)
		},
	}

	addEditFlags(cmd, &opts.EditOptions, true)
	cmd.Flags().StringVar(&opts.Exercise, "exercise", string(model.ExerciseFull), "exercise type (full|partial)")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "partial exercise amount")
	cmd.Flags().StringVar(&opts.Percentage, "percentage", "", "partial exercise percentage as a fraction (0.1 = 10%)")
	return cmd
}

func runAllocate(opts *AllocateOptions, path string, cmd *cobra.Command) error {
	params := lineage.ExerciseParams{ExerciseType: model.ExerciseType(opts.Exercise)}
	argErr := func(msg string) error {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return commandError(f, ErrCodeBadArgument, msg, nil)
	}
	if !params.ExerciseType.Valid() {
		return argErr(fmt.Sprintf("invalid exercise type %q: must be full or partial", opts.Exercise))
	}
	var err error
	if params.PartialExerciseAmount, err = parseDecimalFlag("amount", opts.Amount); err != nil {
		return argErr(err.Error())
	}
	if params.PartialExercisePercentage, err = parseDecimalFlag("percentage", opts.Percentage); err != nil {
		return argErr(err.Error())
	}

	return runEdit(&opts.EditOptions, path, cmd, func(sess *session.Session) (session.Outcome, string, error) {
		out, err := sess.EditAllocation(opts.Round, opts.Holder, params)
		if err != nil {
			return out, "", err
		}
		return out, fmt.Sprintf("Set %s exercise for %s in round %d", params.ExerciseType, opts.Holder, opts.Round), nil
	})
}

func parseDecimalFlag(name, value string) (decimal.NullDecimal, error) {
	if value == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid --%s %q: not a decimal", name, value)
	}
	return decimal.NewNullDecimal(d), nil
}

// RenameOptions holds flags for the rename-holder command.
type RenameOptions struct {
	EditOptions
	From string
	To   string
}

// NewRenameHolderCommand creates the rename-holder command.
func NewRenameHolderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenameOptions{EditOptions: EditOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:           "rename-holder <document>",
		Short:         "Rename a holder and every instrument that references it",
		Args:          cobra.ExactArgs(1),
		Example:       `  captable rename-holder cap.json --from "Acme" --to "Acme Ventures"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(&opts.EditOptions, args[0], cmd, func(sess *session.Session) (session.Outcome, string, error) {
				out, err := sess.RenameHolder(opts.From, opts.To)
				if err != nil {
					return out, "", err
				}
				return out, fmt.Sprintf("Renamed holder %q to %q", opts.From, opts.To), nil
			})
		},
	}

	addEditFlags(cmd, &opts.EditOptions, false)
	cmd.Flags().StringVar(&opts.From, "from", "", "current holder name")
	cmd.Flags().StringVar(&opts.To, "to", "", "new holder name")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// runEdit loads path, applies edit and saves the result. Validation errors
// in the touched rounds are reported but do not block the save: incomplete
// rounds are a normal editing state.
func runEdit(opts *EditOptions, path string, cmd *cobra.Command, edit func(*session.Session) (session.Outcome, string, error)) error {
	formatter, err := opts.start(cmd)
	if err != nil {
		return err
	}
	sess, err := openSession(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}

	outcome, summary, err := edit(sess)
	if err != nil {
		return commandError(formatter, ErrCodeEditRejected, err.Error(), nil)
	}

	out := opts.outputPath(path)
	if err := saveDocument(formatter, sess, out); err != nil {
		return err
	}

	result := EditResult{
		Output:     out,
		Revision:   outcome.Revision,
		Summary:    summary,
		Propagated: locationStrings(outcome.Propagated),
		Errors:     flattenErrors(outcome.Errors),
	}
	if outcome.Resolution != nil {
		result.Degraded = outcome.Resolution.Degraded
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s\n", summary)
	for _, loc := range result.Propagated {
		fmt.Fprintf(w, "  propagated to %s\n", loc)
	}
	if result.Degraded {
		fmt.Fprintf(w, "! no pro-rata right granted to %s before round %d; terms were not refreshed\n", opts.Holder, opts.Round)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "! %s\n", e.Error())
	}
	fmt.Fprintf(w, "Wrote %s\n", out)
	return nil
}

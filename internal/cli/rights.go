package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/lineage"
)

// RightsResult lists the rights available for exercise in a round.
type RightsResult struct {
	Round  int             `json:"round"`
	Rights []lineage.Right `json:"rights"`
}

// RightsOptions holds flags for the rights command.
type RightsOptions struct {
	*RootOptions
	Round int
}

// NewRightsCommand creates the rights command.
func NewRightsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RightsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rights <document>",
		Short: "List pro-rata rights available in a round",
		Long: `List the pro-rata rights granted before a round.

Each holder appears once with the most recent grant, which is the one an
allocation in the round would exercise. --round may equal the number of
rounds to list the rights available to a round not yet added.

Examples:
  captable rights cap.json --round 2
  captable rights cap.json --round 2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRights(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Round, "round", 0, "round index (0-based)")
	_ = cmd.MarkFlagRequired("round")

	return cmd
}

func runRights(opts *RightsOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.start(cmd)
	if err != nil {
		return err
	}
	sess, err := openSession(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}

	doc := sess.Snapshot()
	if opts.Round < 0 || opts.Round > len(doc.Rounds) {
		return commandError(formatter, ErrCodeBadArgument,
			fmt.Sprintf("round %d out of range: document has %d round(s)", opts.Round, len(doc.Rounds)), nil)
	}

	rights := sess.Rights(opts.Round)
	if formatter.JSON() {
		if rights == nil {
			rights = []lineage.Right{}
		}
		return formatter.Success(RightsResult{Round: opts.Round, Rights: rights})
	}

	w := formatter.Writer
	label := fmt.Sprintf("round %d", opts.Round)
	if opts.Round < len(doc.Rounds) {
		label = fmt.Sprintf("round %d (%s)", opts.Round, doc.Rounds[opts.Round].Name)
	}
	if len(rights) == 0 {
		fmt.Fprintf(w, "No pro-rata rights granted before %s\n", label)
		return nil
	}
	fmt.Fprintf(w, "Rights available in %s:\n", label)
	for _, r := range rights {
		fmt.Fprintf(w, "  %s: %s on %s (from %s)\n", r.HolderName, describeRight(r), r.ClassName, r.Origin)
	}
	return nil
}

func describeRight(r lineage.Right) string {
	if r.Percentage.Valid {
		return fmt.Sprintf("%s %s%%", r.Type, r.Percentage.Decimal.Shift(2).String())
	}
	return string(r.Type)
}

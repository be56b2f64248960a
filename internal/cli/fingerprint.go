package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/model"
)

// FingerprintResult identifies a document's content.
type FingerprintResult struct {
	Fingerprint string `json:"fingerprint"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint <document>",
		Short: "Print the content fingerprint of a document",
		Long: `Print the content fingerprint of a document.

The fingerprint hashes the canonical JSON form, so JSON and YAML encodings
of the same document, and decimals written with different trailing zeros,
share one fingerprint.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := rootOpts.start(cmd)
			if err != nil {
				return err
			}
			doc, err := loadDocument(formatter, args[0])
			if err != nil {
				return err
			}
			fp, err := model.Fingerprint(doc)
			if err != nil {
				return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("fingerprint: %v", err), nil)
			}
			if formatter.JSON() {
				return formatter.Success(FingerprintResult{Fingerprint: fp})
			}
			return formatter.Success(fp)
		},
	}

	return cmd
}

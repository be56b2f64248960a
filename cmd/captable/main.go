// Command captable inspects and edits cap table documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/captable/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	cmd.Version = version
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "captable: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}

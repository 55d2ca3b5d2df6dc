package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:           "tradezen",
		Short:         "TradeZen trading journal backed by a spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory holding config.yml and .env")

	cmd.AddCommand(
		newServeCmd(&configDir),
		newSummaryCmd(&configDir),
	)
	return cmd
}

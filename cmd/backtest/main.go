package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay bar files through an analyst ensemble",
	Long: `backtest replays a wide CSV bar file (date,SYM1,SYM2,...) through the ensemble
described by a config file, trading against an in-memory paper broker.

Examples:
  backtest run --config config/config.yaml --bars data/bars.csv
  backtest run --config config/config.yaml --bars data/bars.csv --period 5 --status-every 20
  backtest status --config config/config.yaml`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

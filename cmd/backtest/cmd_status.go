package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"OrgTrader/internal/usecase"
	"OrgTrader/pkg/config"
)

var statusConfigPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Build the configured ensemble and print its initial status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithOverrides(statusConfigPath, func(c *config.Config) {
			c.Feed.Type = "csv"
			if c.Feed.Path == "" {
				c.Feed.Path = "-"
			}
			c.Broker.Type = "paper"
			c.Kafka.ReportsTopic = ""
		})
		if err != nil {
			return err
		}
		ens, err := usecase.BuildEnsemble(cfg.Ensemble.Name, cfg.Ensemble.InitMode, cfg.Ensemble.Analysts, nil)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ens.Status())
		return err
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "config/config.yaml", "config file with the ensemble analysts")
	rootCmd.AddCommand(statusCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"OrgTrader/internal/di"
	"OrgTrader/pkg/config"
)

func main() {
	fs := pflag.NewFlagSet("orgtrader", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "config/config.yaml", "config file path")
	checkOnly := fs.Bool("check", false, "validate the configuration and exit")
	_ = fs.Parse(os.Args[1:])

	if err := run(*configPath, *checkOnly); err != nil {
		fmt.Fprintf(os.Stderr, "orgtrader: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, checkOnly bool) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if checkOnly {
		fmt.Printf("config ok: ensemble=%s analysts=%d feed=%s broker=%s\n",
			cfg.Ensemble.Name, len(cfg.Ensemble.Analysts), cfg.Feed.Type, cfg.Broker.Type)
		return nil
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	// blocks until a signal, or until a strict run fails
	return app.Run()
}

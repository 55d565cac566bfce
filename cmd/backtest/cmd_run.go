package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"OrgTrader/internal/domain/models"
	"OrgTrader/internal/ensemble"
	"OrgTrader/internal/repository"
	"OrgTrader/internal/usecase"
	"OrgTrader/pkg/config"
	applogger "OrgTrader/pkg/logger"
)

type runOptions struct {
	configPath  string
	barsPath    string
	capital     float64
	period      int
	statusEvery int
	lenient     bool
	logLevel    string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a CSV bar file and print ensemble status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runBacktest(ctx, cmd.OutOrStdout(), cmd.Flags(), runOpts)
	},
}

func init() {
	fs := runCmd.Flags()
	fs.StringVar(&runOpts.configPath, "config", "config/config.yaml", "config file with the ensemble analysts")
	fs.StringVar(&runOpts.barsPath, "bars", "", "wide CSV bar file")
	fs.Float64Var(&runOpts.capital, "capital", usecase.DefaultCapital, "capital allocated on every rebalance")
	fs.IntVar(&runOpts.period, "period", 30, "epochs between rebalances")
	fs.IntVar(&runOpts.statusEvery, "status-every", 0, "print the ensemble status every N epochs (0 prints on rebalances only)")
	fs.BoolVar(&runOpts.lenient, "lenient", false, "log failed epochs and keep going")
	fs.StringVar(&runOpts.logLevel, "log-level", "warn", "log level")
	_ = runCmd.MarkFlagRequired("bars")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the ensemble section of path; flags the user set win over the file.
func loadConfig(path string, fs *pflag.FlagSet, o runOptions) (*config.Config, error) {
	return config.LoadWithOverrides(path, func(c *config.Config) {
		c.Feed.Type = "csv"
		c.Feed.Path = o.barsPath
		c.Broker.Type = "paper"
		c.Kafka.ReportsTopic = ""
		if fs == nil {
			return
		}
		if fs.Changed("capital") {
			c.Ensemble.Capital = o.capital
		}
		if fs.Changed("period") {
			c.Ensemble.RebalancePeriod = o.period
		}
		if fs.Changed("lenient") {
			c.Ensemble.Strict = !o.lenient
		}
	})
}

func runBacktest(ctx context.Context, out io.Writer, fs *pflag.FlagSet, o runOptions) error {
	cfg, err := loadConfig(o.configPath, fs, o)
	if err != nil {
		return err
	}
	l, err := applogger.New(&applogger.Config{Level: o.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}

	ens, err := usecase.BuildEnsemble(cfg.Ensemble.Name, cfg.Ensemble.InitMode, cfg.Ensemble.Analysts, l)
	if err != nil {
		return err
	}
	feed, err := repository.OpenCSVFeed(cfg.Feed.Path)
	if err != nil {
		return err
	}
	defer feed.Close()

	broker := repository.NewPaperBroker()
	p := usecase.NewEpochProcessor(
		ens,
		ensemble.NewRebalanceScheduler(cfg.Ensemble.RebalancePeriod),
		usecase.NewOrderGenerator(broker, cfg.Ensemble.Capital, nil),
		usecase.WithStrict(cfg.Ensemble.Strict),
		usecase.WithReportSink(&statusPrinter{out: out, ens: ens, every: int64(o.statusEvery)}),
		usecase.WithLogger(l),
	)

	runErr := p.Run(ctx, feed)

	fmt.Fprintf(out, "\n=== final after %d epochs ===\n%s", p.Epoch(), ens.Status())
	printHoldings(out, broker)
	return runErr
}

// statusPrinter dumps the ensemble status on rebalances and every N epochs.
type statusPrinter struct {
	out   io.Writer
	ens   *ensemble.Ensemble
	every int64
}

func (s *statusPrinter) Publish(_ context.Context, r models.EnsembleReport) error {
	if !r.Triggered && (s.every <= 0 || r.Epoch%s.every != 0) {
		return nil
	}
	_, err := fmt.Fprintf(s.out, "\n=== epoch %d %s (rebalance=%t orders=%d) ===\n%s",
		r.Epoch, r.Timestamp.Format("2006-01-02"), r.Triggered, r.Orders, s.ens.Status())
	return err
}

func printHoldings(out io.Writer, b *repository.PaperBroker) {
	holdings := b.Holdings()
	instrs := make([]string, 0, len(holdings))
	for instr := range holdings {
		instrs = append(instrs, string(instr))
	}
	sort.Strings(instrs)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\nINSTRUMENT\tSHARES\n")
	for _, instr := range instrs {
		fmt.Fprintf(tw, "%s\t%d\n", instr, holdings[models.Instrument(instr)])
	}
	fmt.Fprintf(tw, "fills\t%d\n", len(b.Fills()))
	_ = tw.Flush()
}

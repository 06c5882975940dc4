package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"dealcatalog/lib/serviceutil"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	config      string
	dir         string
	date        string
	verbose     bool
	concurrency int
	timeout     time.Duration
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "dealcatalog",
	Short: "dealcatalog collects discounted games from storefronts and enriches them with review metadata.",
	// errors are printed once by ExecuteContext.
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flags.config, "config", "", "Path to a config file, defaults to the nearest dealcatalog.json5.")
	persistent.StringVar(&flags.dir, "dir", "", "Directory input files are read from and output files are written to.")
	persistent.StringVar(&flags.date, "date", "", "Date (DD-MM-YYYY) that names the files of this run, defaults to today.")
	persistent.BoolVarP(&flags.verbose, "verbose", "v", false, "Print debug output.")
	persistent.IntVar(&flags.concurrency, "concurrency", 0, "Number of enrichment lookups in flight, overrides the config.")
	persistent.DurationVar(&flags.timeout, "timeout", 0, "Deadline of the enrichment stage (ex. 10m), overrides the config.")
}

func ExecuteContext(ctx context.Context) {
	ctx, cancel := serviceutil.SignalContext(ctx)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

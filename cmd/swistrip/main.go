package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swistrip/internal/logging"
	"swistrip/pkg/config"
)

// app holds the state shared by all commands
type app struct {
	configPath string
	verbose    bool
	logFile    string
	workers    int
	qcDir      string
	betPath    string

	cfg    *config.Config
	logger *zap.Logger
	closer func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "swistrip",
		Short: "Refine coarse skull stripping of SWI magnitude images",
		Long: `swistrip removes the bright dura and vessels that a coarse skull
stripper leaves on top of the brain in susceptibility-weighted images.

The refinement consists of four steps:
  1. Eroding the coarse mask into a seed that lies inside the brain
  2. Cutting every column at the first intensity jump above the seed
  3. Opening then closing the mask
  4. Keeping the largest component and filling its holes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Configuration file (.yaml or .toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&a.logFile, "log-file", "", "Also write logs to this rotating file")
	flags.IntVar(&a.workers, "workers", 0, "Goroutines used by the column refiner (default: all CPUs)")
	flags.StringVar(&a.qcDir, "qc-dir", "", "Directory for quality-control JPEG slices")

	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newRefineCmd())
	root.AddCommand(a.newBidsCmd())
	root.AddCommand(a.newConfigCmd())

	return root
}

// setup loads the configuration, applies flag overrides and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("verbose") {
		cfg.Output.Verbose = a.verbose
	}
	if f.Changed("log-file") {
		cfg.Logging.File = a.logFile
	}
	if f.Changed("workers") {
		cfg.Refine.Workers = a.workers
	}
	if f.Changed("qc-dir") {
		cfg.Output.QCDir = a.qcDir
	}
	if f.Lookup("bet") != nil && f.Changed("bet") {
		cfg.Bet.Path = a.betPath
	}

	a.cfg = cfg
	a.logger, a.closer = logging.New(logging.Config{
		Verbose:    cfg.Output.Verbose,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"swistrip/pkg/config"
	"swistrip/pkg/pipeline"
)

func (a *app) newRunCmd() *cobra.Command {
	var in pipeline.Input

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run bet on an SWI image and refine the result",
		Example: `  swistrip run --swi sub-01_ses-01_swi.nii.gz --out out/sub-01_ses-01_
  swistrip run --swi swi.nii.gz --flair flair.nii.gz --out out/ --bet /opt/fsl/bin/bet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := pipeline.NewRunner(a.cfg, a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			res, err := runner.RunSession(cmd.Context(), in)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.SWI, "swi", "", "Raw SWI magnitude image")
	cmd.Flags().StringVar(&in.FLAIR, "flair", "", "FLAIR image that must exist for the session")
	cmd.Flags().StringVar(&in.Prefix, "out", "", "Output prefix; may include directories")
	cmd.Flags().StringVar(&a.betPath, "bet", "", "Path to bet (default: $FSLDIR/bin/bet or PATH)")
	_ = cmd.MarkFlagRequired("swi")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) newRefineCmd() *cobra.Command {
	var input, prefix string

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine an image that was already skull stripped",
		Example: `  swistrip refine --in sub-01_ses-01_swi_bet.nii.gz --out out/sub-01_ses-01_`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := pipeline.NewRunner(a.cfg, a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			res, err := runner.RefineFile(cmd.Context(), input, prefix)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "in", "", "Coarsely stripped image with zero background")
	cmd.Flags().StringVar(&prefix, "out", "", "Output prefix; may include directories")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) newBidsCmd() *cobra.Command {
	var root string
	var limit, jobs int
	var suffix string

	cmd := &cobra.Command{
		Use:   "bids",
		Short: "Process every session of a BIDS dataset",
		Long: `Processes every rawdata/sub-*/ses-* session of a BIDS dataset. Sessions
without anat/<sub>_<ses>_FLAIR.nii.gz or swi/<sub>_<ses>_<suffix> are
skipped. Outputs are written to derivatives/swi_strip/<sub>/<ses>/swi/.`,
		Example: `  swistrip bids --bids-root /data/study --limit 5 --jobs 4`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("limit") {
				a.cfg.Dataset.Limit = limit
			}
			if f.Changed("jobs") {
				a.cfg.Dataset.Jobs = jobs
			}
			if f.Changed("swi-suffix") {
				a.cfg.Dataset.SwiSuffix = suffix
			}

			runner, err := pipeline.NewRunner(a.cfg, a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			summary, err := runner.Batch(cmd.Context(), root)
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), summary, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "bids-root", "", "Root of the BIDS dataset")
	cmd.Flags().IntVar(&limit, "limit", 0, "Process at most this many subjects")
	cmd.Flags().IntVar(&jobs, "jobs", 1, "Sessions processed concurrently")
	cmd.Flags().StringVar(&suffix, "swi-suffix", "swi.nii.gz", "Suffix of the SWI file after <sub>_<ses>_")
	cmd.Flags().StringVar(&a.betPath, "bet", "", "Path to bet (default: $FSLDIR/bin/bet or PATH)")
	_ = cmd.MarkFlagRequired("bids-root")
	return cmd
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		// no logger or configuration needed
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "swistrip.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	})

	return cmd
}

func printResult(w io.Writer, res *pipeline.Result, elapsed time.Duration) {
	s := res.Stats
	fmt.Fprintf(w, "Refinement completed in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Voxels: %s in, %s out (%d columns cut)\n",
		humanize.Comma(int64(s.InputVoxels)), humanize.Comma(int64(s.FinalVoxels)), s.CutColumns)
	fmt.Fprintf(w, "Brain saved to: %s\n", res.Outputs.Brain)
	fmt.Fprintf(w, "Mask saved to:  %s\n", res.Outputs.Mask)
	if res.Outputs.Report != "" {
		fmt.Fprintf(w, "Report:         %s\n", res.Outputs.Report)
	}
	if res.Outputs.Mesh != "" {
		fmt.Fprintf(w, "Mesh:           %s\n", res.Outputs.Mesh)
	}
}

// printSummary lists failures by session ID so repeated runs print alike
func printSummary(w io.Writer, summary *pipeline.Summary, elapsed time.Duration) {
	fmt.Fprintf(w, "Run %s completed in %s\n", summary.RunID, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Processed: %d\nSkipped:   %d\nFailed:    %d\n", summary.Processed, summary.Skipped, summary.Failed)

	ids := make([]string, 0, len(summary.Failures))
	for id := range summary.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "- %s: %s\n", id, summary.Failures[id])
	}
}

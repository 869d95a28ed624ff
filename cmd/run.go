package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/config"
	"github.com/sells-group/mrio-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for the configured years",
	Long:  "Runs the matrix, feed and provenance stages in order for every year. Use --stages to run a subset.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, _ := cmd.Flags().GetStringSlice("stages")
		return runStages(cmd, names)
	},
}

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Build the attributed trade matrix",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, []string{string(pipeline.StageMatrix)})
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Propagate livestock feed through the trade matrix",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, []string{string(pipeline.StageFeed)})
	},
}

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Trace each country's consumption to its producers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, []string{string(pipeline.StageProvenance)})
	},
}

func runStages(cmd *cobra.Command, names []string) error {
	ctx := cmd.Context()

	if err := applyRunFlags(cmd, &cfg.Mrio); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	stages, err := pipeline.ParseStages(names)
	if err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	zap.L().Info("starting pipeline",
		zap.Ints("years", cfg.Mrio.Years),
		zap.Int("stages", len(stages)),
		zap.String("conversion_option", cfg.Mrio.ConversionOption),
		zap.String("prefer_import", cfg.Mrio.PreferImport),
	)

	results, err := pipeline.New(cfg.Mrio, st, cfg.Store.PersistMatrices).Run(ctx, cfg.Mrio.Years, stages)
	formatResults(os.Stdout, results)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return eris.Errorf("run: %d of %d years failed", failed, len(results))
	}
	return nil
}

// applyRunFlags overrides configuration with the flags the user set.
func applyRunFlags(cmd *cobra.Command, m *config.MrioConfig) error {
	f := cmd.Flags()
	if f.Changed("years") {
		years, err := f.GetIntSlice("years")
		if err != nil {
			return eris.Wrap(err, "parse --years")
		}
		m.Years = years
	}
	if f.Changed("countries") {
		countries, err := f.GetIntSlice("countries")
		if err != nil {
			return eris.Wrap(err, "parse --countries")
		}
		m.Countries = countries
	}
	if f.Changed("conversion") {
		m.ConversionOption, _ = f.GetString("conversion")
	}
	if f.Changed("prefer") {
		m.PreferImport, _ = f.GetString("prefer")
	}
	if f.Changed("workers") {
		m.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("input") {
		m.InputDir, _ = f.GetString("input")
	}
	if f.Changed("results") {
		m.ResultsDir, _ = f.GetString("results")
	}
	return nil
}

// formatResults writes one line per stage of every year to out.
func formatResults(out io.Writer, results []pipeline.YearResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "YEAR\tRUN\tSTAGE\tSTATUS\tROWS\tDURATION")
	_, _ = fmt.Fprintln(w, "----\t---\t-----\t------\t----\t--------")
	for _, r := range results {
		for _, s := range r.Stages {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				r.Year,
				truncateID(r.RunID),
				s.Stage,
				s.Status,
				s.Rows,
				s.Duration.Round(time.Millisecond),
			)
		}
	}
	_ = w.Flush()
}

func addRunFlags(c *cobra.Command) {
	c.Flags().IntSlice("years", nil, "years to process (overrides mrio.years)")
	c.Flags().IntSlice("countries", nil, "restrict provenance to these FAO country codes")
	c.Flags().String("conversion", "", "conversion basis column of the content factors table (e.g. dry_matter)")
	c.Flags().String("prefer", "", "authoritative trade side: import or export")
	c.Flags().Int("workers", 0, "concurrent solver and provenance workers")
	c.Flags().String("input", "", "input directory")
	c.Flags().String("results", "", "results directory")
}

func init() {
	runCmd.Flags().StringSlice("stages", nil, "stages to run (matrix, feed, provenance); default all")
	for _, c := range []*cobra.Command{runCmd, matrixCmd, feedCmd, provenanceCmd} {
		addRunFlags(c)
		rootCmd.AddCommand(c)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keylens/internal/daemon"
	"keylens/internal/report"
	"keylens/internal/stats"
)

var (
	topCount  int
	topScope  string
	topPrefix string

	dailyTop  int
	dailyDays int

	exportScope  string
	exportOutput string

	statusMetrics bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			st := daemon.NewManager(cfg.DataDir()).Status()
			r := report.New(cmd.OutOrStdout())
			r.Status(*st, engine.Totals())
			if statusMetrics {
				var snap map[string]float64
				if st.Running && st.State != nil {
					snap = st.State.Metrics
				}
				fmt.Fprintln(cmd.OutOrStdout())
				r.Metrics(snap)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusMetrics, "metrics", false, "also print the metrics published by the daemon")
	return cmd
}

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most pressed keys",
		Args:  cobra.NoArgs,
		RunE:  runTopCmd,
	}
	cmd.Flags().IntVarP(&topCount, "limit", "n", 10, "number of labels to show")
	cmd.Flags().StringVar(&topScope, "scope", "lifetime", "lifetime, today or combos")
	cmd.Flags().StringVar(&topPrefix, "prefix", "", "only combos starting with this modifier prefix (implies --scope combos)")
	return cmd
}

func runTopCmd(cmd *cobra.Command, _ []string) error {
	scope, ok := stats.ParseScope(topScope)
	if !ok {
		return fmt.Errorf("unknown scope %q", topScope)
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := openSnapshot(cfg)
	if err != nil {
		return err
	}

	r := report.New(cmd.OutOrStdout())
	if topPrefix != "" {
		r.Ranking(fmt.Sprintf("Top combos (%s)", topPrefix), engine.TopCombos(topPrefix, topCount))
		return nil
	}
	r.Ranking(fmt.Sprintf("Top keys (%s)", scope), engine.TopLabels(topCount, scope))
	return nil
}

func newTotalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show lifetime and today totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			report.New(cmd.OutOrStdout()).Totals(engine.Totals())
			return nil
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Show lifetime totals per key category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			report.New(cmd.OutOrStdout()).Categories(engine.PerCategoryTotals())
			return nil
		},
	}
}

func newDailyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show per-day totals",
		Long: `Daily shows the total of every recorded day. With --top, it instead
shows each day's counts for the labels pressed most over the last --days
recorded days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			r := report.New(cmd.OutOrStdout())
			if dailyTop > 0 {
				r.PerDay(engine.PerDayTop(dailyTop, dailyDays))
				return nil
			}
			r.Daily(engine.DailySeries())
			return nil
		},
	}
	cmd.Flags().IntVar(&dailyTop, "top", 0, "show per-day counts of the top N labels")
	cmd.Flags().IntVar(&dailyDays, "days", 7, "recent days considered by --top")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write counts as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := stats.ParseExportScope(exportScope)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := openSnapshot(cfg)
			if err != nil {
				return err
			}
			out, err := engine.ExportCSV(scope)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			if exportOutput == "" || exportOutput == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			if err := os.WriteFile(exportOutput, []byte(out), 0644); err != nil {
				return fmt.Errorf("write %s: %w", exportOutput, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", exportOutput)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportScope, "scope", "summary", "summary (rank,label,total) or daily (date,label,count)")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

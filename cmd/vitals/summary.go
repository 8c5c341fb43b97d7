// ABOUTME: CLI commands for daily summaries: rebuild, show, list, and week.
// ABOUTME: Rebuild accepts one date, a range, or every date with data.
package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/spf13/cobra"
)

var (
	summaryDate  string
	summaryFrom  string
	summaryTo    string
	summaryAll   bool
	summaryLimit int
)

var summaryCmd = &cobra.Command{
	Use:     "summary",
	Aliases: []string{"sum"},
	Short:   "Daily summaries",
	Long: `Work with per-day summaries.

A daily summary combines the day's nutrition, main sleep session, activity,
vitals, and readiness scores. Summaries are rebuilt automatically after each
import; use 'summary rebuild' after changing data by other means.

EXAMPLES:

  vitals summary show 2024-03-10
  vitals summary list --from 2024-03-01 --to 2024-03-31
  vitals summary rebuild --date 2024-03-10
  vitals summary rebuild --from 2024-03-01 --to 2024-03-07
  vitals summary rebuild --all
  vitals summary week 2024-03-06`,
}

var summaryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute daily summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		user := cfg.GetUser()
		builder := vitalsApp.Builder

		switch {
		case summaryAll:
			n, err := builder.RebuildAll(ctx, user)
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			color.Green("✓ Rebuilt %d daily summaries", n)
			return nil

		case summaryFrom != "" || summaryTo != "":
			if summaryFrom == "" || summaryTo == "" {
				return errors.New("--from and --to must be used together")
			}
			from, err := parseDateFlag("from", summaryFrom)
			if err != nil {
				return err
			}
			to, err := parseDateFlag("to", summaryTo)
			if err != nil {
				return err
			}
			summaries, err := builder.RebuildRange(ctx, from, to, user)
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			color.Green("✓ Rebuilt %d daily summaries (%s to %s)", len(summaries), from, to)
			return nil

		case summaryDate != "":
			d, err := parseDateFlag("date", summaryDate)
			if err != nil {
				return err
			}
			s, err := builder.Rebuild(ctx, d, user)
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			color.Green("✓ Rebuilt %s (completeness %d%%)", d, s.DataCompleteness)
			return nil
		}
		return errors.New("specify --date, --from and --to, or --all")
	},
}

var summaryShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show one day's summary (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := civil.DateOf(time.Now())
		if len(args) == 1 {
			var err error
			if d, err = parseDateFlag("date", args[0]); err != nil {
				return err
			}
		}

		s, err := vitalsApp.Store.GetSummary(commandContext(cmd), cfg.GetUser(), d)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No summary for %s. Try 'vitals summary rebuild --date %s'.\n", d, d)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load summary: %w", err)
		}
		printSummary(cmd.OutOrStdout(), s)
		return nil
	},
}

var summaryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List daily summaries",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDateFlag("from", summaryFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", summaryTo)
		if err != nil {
			return err
		}

		summaries, err := vitalsApp.Store.ListSummaries(commandContext(cmd), storage.Filter{
			UserID: cfg.GetUser(),
			From:   from,
			To:     to,
			Limit:  summaryLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list summaries: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No daily summaries found.")
			return nil
		}

		faint := color.New(color.Faint)
		fmt.Fprintln(out, faint.Sprint("DATE        CALORIES  PROTEIN  STEPS   SLEEP     RHR  HRV    SCORE  DONE"))
		for _, s := range summaries {
			fmt.Fprintf(out, "%s  %s%s%s%s%s%s%s%d%%\n",
				s.Date,
				padRight(fmtFloat(s.Calories, 0), 10),
				padRight(fmtFloat(s.ProteinG, 0), 9),
				padRight(fmtInt(s.Steps), 8),
				padRight(fmtMinutes(s.SleepDurationMin), 10),
				padRight(fmtInt(s.RestingHR), 5),
				padRight(fmtFloat(s.HRVRMSSD, 1), 7),
				padRight(fmtInt(s.SleepScore), 7),
				s.DataCompleteness)
		}
		return nil
	},
}

var summaryWeekCmd = &cobra.Command{
	Use:   "week [date]",
	Short: "Weekly report for the Monday to Sunday week containing date",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := civil.DateOf(time.Now())
		if len(args) == 1 {
			var err error
			if d, err = parseDateFlag("date", args[0]); err != nil {
				return err
			}
		}

		report, err := vitalsApp.Builder.WeeklyReport(commandContext(cmd), cfg.GetUser(), summary.MondayOf(d))
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}

		out := cmd.OutOrStdout()
		a := report.Averages
		fmt.Fprintf(out, "Week %s to %s (%d days with data)\n\n", report.Start, report.End, a.Days)
		fmt.Fprintf(out, "  Avg calories     %s\n", fmtFloat(a.Calories, 0))
		fmt.Fprintf(out, "  Avg protein      %s g\n", fmtFloat(a.ProteinG, 0))
		fmt.Fprintf(out, "  Avg steps        %s\n", fmtFloat(a.Steps, 0))
		fmt.Fprintf(out, "  Avg sleep        %s min\n", fmtFloat(a.SleepMin, 0))
		fmt.Fprintf(out, "  Avg resting HR   %s\n", fmtFloat(a.RestingHR, 1))
		fmt.Fprintf(out, "  Avg HRV          %s\n", fmtFloat(a.HRV, 1))
		fmt.Fprintf(out, "  Total steps      %d\n", report.Totals.Steps)
		fmt.Fprintf(out, "  Best sleep score %s\n", fmtInt(report.Bests.SleepScore))
		return nil
	},
}

func printSummary(out io.Writer, s *models.DailySummary) {
	bold := color.New(color.Bold)
	fmt.Fprintln(out, bold.Sprintf("%s  (%d%% complete)", s.Date, s.DataCompleteness))

	fmt.Fprintln(out, bold.Sprint("\nNutrition"))
	fmt.Fprintf(out, "  Calories   %s kcal\n", fmtFloat(s.Calories, 0))
	fmt.Fprintf(out, "  Protein    %s g (%s%%)\n", fmtFloat(s.ProteinG, 1), fmtFloat(s.ProteinPct, 1))
	fmt.Fprintf(out, "  Carbs      %s g (%s%%)\n", fmtFloat(s.CarbsG, 1), fmtFloat(s.CarbsPct, 1))
	fmt.Fprintf(out, "  Fat        %s g (%s%%)\n", fmtFloat(s.FatG, 1), fmtFloat(s.FatPct, 1))

	fmt.Fprintln(out, bold.Sprint("\nSleep"))
	fmt.Fprintf(out, "  Duration   %s\n", fmtMinutes(s.SleepDurationMin))
	fmt.Fprintf(out, "  Deep/REM   %s / %s\n", fmtMinutes(s.DeepSleepMin), fmtMinutes(s.REMSleepMin))
	fmt.Fprintf(out, "  Efficiency %s\n", fmtInt(s.SleepEfficiency))
	fmt.Fprintf(out, "  Score      %s\n", fmtInt(s.SleepScore))

	fmt.Fprintln(out, bold.Sprint("\nActivity"))
	fmt.Fprintf(out, "  Steps      %s\n", fmtInt(s.Steps))
	fmt.Fprintf(out, "  Distance   %s km\n", fmtFloat(s.DistanceKM, 2))
	fmt.Fprintf(out, "  Zone mins  %s\n", fmtInt(s.ActiveZoneMinutes))

	fmt.Fprintln(out, bold.Sprint("\nVitals"))
	fmt.Fprintf(out, "  Resting HR %s bpm\n", fmtInt(s.RestingHR))
	fmt.Fprintf(out, "  HRV        %s ms\n", fmtFloat(s.HRVRMSSD, 1))
	fmt.Fprintf(out, "  SpO2       %s%% (min %s%%)\n", fmtFloat(s.SpO2Avg, 1), fmtFloat(s.SpO2Min, 1))
	fmt.Fprintf(out, "  Skin temp  %s\n", fmtFloat(s.SkinTempDeviation, 2))

	fmt.Fprintln(out, bold.Sprint("\nScores"))
	fmt.Fprintf(out, "  Readiness  %s\n", fmtInt(s.ReadinessScore))
	fmt.Fprintf(out, "  Stress     %s\n", fmtInt(s.StressScore))
}

func init() {
	summaryRebuildCmd.Flags().StringVar(&summaryDate, "date", "", "rebuild one date (YYYY-MM-DD)")
	summaryRebuildCmd.Flags().StringVar(&summaryFrom, "from", "", "first date of a range")
	summaryRebuildCmd.Flags().StringVar(&summaryTo, "to", "", "last date of a range")
	summaryRebuildCmd.Flags().BoolVar(&summaryAll, "all", false, "rebuild every date with stored records")

	summaryListCmd.Flags().StringVar(&summaryFrom, "from", "", "first date (YYYY-MM-DD)")
	summaryListCmd.Flags().StringVar(&summaryTo, "to", "", "last date (YYYY-MM-DD)")
	summaryListCmd.Flags().IntVarP(&summaryLimit, "limit", "n", 30, "max number of days")

	summaryCmd.AddCommand(summaryRebuildCmd, summaryShowCmd, summaryListCmd, summaryWeekCmd)
	rootCmd.AddCommand(summaryCmd)
}

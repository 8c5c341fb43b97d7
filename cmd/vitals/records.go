// ABOUTME: CLI commands for listing stored records: metrics, sleep, and nutrition.
// ABOUTME: Shares one set of filter flags across the three listings.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/spf13/cobra"
)

var (
	recordsType   string
	recordsSource string
	recordsDate   string
	recordsFrom   string
	recordsTo     string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	Aliases: []string{"list", "ls"},
	Short:   "List metric records",
	Long: `List stored metric records, newest first.

OUTPUT FORMAT:

  Each line shows: TIMESTAMP  SOURCE  TYPE  VALUE  UNIT

FILTERING:

  --type      metric type, e.g. steps, resting_heart_rate, hrv_rmssd, spo2
  --source    fitbit, apple_health, cronometer, ...
  --date      a single day
  --from/--to an inclusive date range

EXAMPLES:

  vitals records                              # last 20 records
  vitals records --type steps -n 7            # last week of steps
  vitals records --source fitbit --date 2024-03-10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recordsFilter()
		if err != nil {
			return err
		}
		if recordsType != "" {
			if !models.IsValidMetricType(recordsType) {
				return fmt.Errorf("unknown metric type: %s", recordsType)
			}
			f.MetricType = models.MetricType(recordsType)
		}

		metrics, err := vitalsApp.Store.ListMetrics(commandContext(cmd), f)
		if err != nil {
			return fmt.Errorf("failed to list metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(metrics) == 0 {
			fmt.Fprintln(out, "No metrics found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, m := range metrics {
			fmt.Fprintf(out, "%s %s %s %.2f %s\n",
				faint.Sprint(m.Timestamp.Format("2006-01-02 15:04")),
				faint.Sprint(padRight(string(m.Source), 12)),
				padRight(string(m.MetricType), 24),
				m.Value,
				m.Unit)
		}
		return nil
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "List sleep sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recordsFilter()
		if err != nil {
			return err
		}
		sessions, err := vitalsApp.Store.ListSleep(commandContext(cmd), f)
		if err != nil {
			return fmt.Errorf("failed to list sleep: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sleep sessions found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, s := range sessions {
			duration := s.DurationMinutes
			fmt.Fprintf(out, "%s %s %s  %s  deep %s  rem %s  score %s\n",
				s.DateOfSleep,
				faint.Sprintf("%s-%s", s.StartTime.Format("15:04"), s.EndTime.Format("15:04")),
				faint.Sprint(padRight(string(s.Source), 12)),
				fmtMinutes(&duration),
				fmtMinutes(s.DeepMinutes),
				fmtMinutes(s.REMMinutes),
				fmtInt(s.SleepScore))
		}
		return nil
	},
}

var nutritionCmd = &cobra.Command{
	Use:     "nutrition",
	Aliases: []string{"food"},
	Short:   "List daily nutrition totals",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recordsFilter()
		if err != nil {
			return err
		}
		days, err := vitalsApp.Store.ListNutrition(commandContext(cmd), f)
		if err != nil {
			return fmt.Errorf("failed to list nutrition: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(days) == 0 {
			fmt.Fprintln(out, "No nutrition entries found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, n := range days {
			fmt.Fprintf(out, "%s %s %s kcal  P %sg  C %sg  F %sg\n",
				n.Date,
				faint.Sprint(padRight(string(n.Source), 12)),
				padRight(fmtFloat(n.Calories, 0), 6),
				fmtFloat(n.ProteinG, 0),
				fmtFloat(n.CarbsG, 0),
				fmtFloat(n.FatG, 0))
		}
		return nil
	},
}

func recordsFilter() (storage.Filter, error) {
	f := storage.Filter{UserID: cfg.GetUser(), Limit: recordsLimit}
	if recordsSource != "" {
		if !models.IsValidSource(recordsSource) {
			return f, fmt.Errorf("unknown source: %s", recordsSource)
		}
		f.Source = models.Source(recordsSource)
	}
	if recordsDate != "" {
		d, err := parseDateFlag("date", recordsDate)
		if err != nil {
			return f, err
		}
		return f.OnDate(d), nil
	}
	var err error
	if f.From, err = parseDateFlag("from", recordsFrom); err != nil {
		return f, err
	}
	if f.To, err = parseDateFlag("to", recordsTo); err != nil {
		return f, err
	}
	return f, nil
}

func init() {
	for _, c := range []*cobra.Command{recordsCmd, sleepCmd, nutritionCmd} {
		c.Flags().StringVar(&recordsSource, "source", "", "filter by source")
		c.Flags().StringVar(&recordsDate, "date", "", "only this date (YYYY-MM-DD)")
		c.Flags().StringVar(&recordsFrom, "from", "", "first date (YYYY-MM-DD)")
		c.Flags().StringVar(&recordsTo, "to", "", "last date (YYYY-MM-DD)")
		c.Flags().IntVarP(&recordsLimit, "limit", "n", 20, "max number of results")
		rootCmd.AddCommand(c)
	}
	recordsCmd.Flags().StringVarP(&recordsType, "type", "t", "", "filter by metric type")
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Manage recurring series",
}

var seriesAddFlags struct {
	desc, amount, currency string
	account, to            string
	freq, weekday          string
	interval, day, month   int
	start, end             string
	patterns               []string
}

var seriesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a recurring series",
	Long: `Create a recurring transaction, or a transfer when --to names a destination
account. Accounts are referenced by name and created on first use.

Example:
  recurring series add --desc Rent --amount -1500 --freq monthly --day 31 --start 2025-01-31
  recurring series add --desc Savings --amount 200 --to Savings --freq biweekly --weekday fri --start 2025-01-03`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f := seriesAddFlags
		currency := f.currency
		if currency == "" {
			currency = app.cfg.UI.Currency
		}
		amount, err := money.Parse(f.amount, currency)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		freq, err := recurrence.ParseFrequency(f.freq)
		if err != nil {
			return err
		}
		spec := recurrence.Spec{Frequency: freq, Interval: f.interval, DayOfMonth: f.day, MonthOfYear: time.Month(f.month)}
		if f.weekday != "" {
			wd, err := parseWeekday(f.weekday)
			if err != nil {
				return err
			}
			spec.DayOfWeek = &wd
		}
		start, err := parseDateArg("start", f.start)
		if err != nil {
			return err
		}
		in := service.CreateSeriesInput{
			Kind:           schedule.KindTransaction,
			Description:    f.desc,
			Amount:         amount,
			Pattern:        spec,
			StartDate:      start,
			ImportPatterns: f.patterns,
		}
		if f.end != "" {
			end, err := parseDateArg("end", f.end)
			if err != nil {
				return err
			}
			in.EndDate = &end
		}
		if in.AccountID, err = app.accountID(ctx, f.account, currency); err != nil {
			return err
		}
		if f.to != "" {
			in.Kind = schedule.KindTransfer
			if in.ToAccountID, err = app.accountID(ctx, f.to, currency); err != nil {
				return err
			}
		}
		s, err := app.svc.Series.Create(ctx, in)
		if err != nil {
			return err
		}
		printTable(cmd.OutOrStdout(), seriesHeaders, [][]string{seriesRow(s)})
		return nil
	},
}

var seriesListAll bool

var seriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List series",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.svc.Series.List(cmd.Context(), repository.SeriesFilters{ActiveOnly: !seriesListAll})
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			rows = append(rows, seriesRow(s))
		}
		printTable(cmd.OutOrStdout(), seriesHeaders, rows)
		return nil
	},
}

var seriesDeactivateCmd = &cobra.Command{
	Use:   "deactivate SERIES_ID",
	Short: "Stop projecting a series; its history is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.svc.Series.Deactivate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
		return nil
	},
}

func init() {
	f := seriesAddCmd.Flags()
	f.StringVar(&seriesAddFlags.desc, "desc", "", "description")
	f.StringVar(&seriesAddFlags.amount, "amount", "", "signed amount, negative for outflows")
	f.StringVar(&seriesAddFlags.currency, "currency", "", "ISO currency (default ui.currency)")
	f.StringVar(&seriesAddFlags.account, "account", "Checking", "account name")
	f.StringVar(&seriesAddFlags.to, "to", "", "destination account name; makes the series a transfer")
	f.StringVar(&seriesAddFlags.freq, "freq", "monthly", "daily|weekly|biweekly|monthly|quarterly|yearly")
	f.IntVar(&seriesAddFlags.interval, "interval", 1, "repeat every N units")
	f.StringVar(&seriesAddFlags.weekday, "weekday", "", "day of week for weekly and biweekly")
	f.IntVar(&seriesAddFlags.day, "day", 0, "day of month (1-31, clamped to month end)")
	f.IntVar(&seriesAddFlags.month, "month", 0, "month of year (1-12) for yearly")
	f.StringVar(&seriesAddFlags.start, "start", "", "start date YYYY-MM-DD")
	f.StringVar(&seriesAddFlags.end, "end", "", "optional end date YYYY-MM-DD")
	f.StringSliceVar(&seriesAddFlags.patterns, "pattern", nil, "bank statement text that identifies this series")
	_ = seriesAddCmd.MarkFlagRequired("desc")
	_ = seriesAddCmd.MarkFlagRequired("amount")
	_ = seriesAddCmd.MarkFlagRequired("start")

	seriesListCmd.Flags().BoolVar(&seriesListAll, "all", false, "include inactive series")

	seriesCmd.AddCommand(seriesAddCmd, seriesListCmd, seriesDeactivateCmd)
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

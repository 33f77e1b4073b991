package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

var projectFlags struct {
	from, to, account string
	days              int
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "List projected occurrences of all active series",
	Long: `List the occurrences of every active series in a date range, after skips and
modifications. Realized occurrences are marked with ✓ and keep their
transaction id.

Example:
  recurring project --from 2025-03-01 --to 2025-03-31
  recurring project --days 14 --account Savings`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, to, err := projectRange()
		if err != nil {
			return err
		}
		accountID := ""
		if projectFlags.account != "" {
			if accountID, err = app.accountID(ctx, projectFlags.account, ""); err != nil {
				return err
			}
		}
		list, err := app.svc.Projector.Instances(ctx, from, to, accountID)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, inst := range list {
			rows = append(rows, instanceRow(inst))
		}
		printTable(cmd.OutOrStdout(), []string{"Date", "Scheduled", "Description", "Amount", "", "Series"}, rows)
		return nil
	},
}

func projectRange() (date.Date, date.Date, error) {
	today, err := app.today()
	if err != nil {
		return date.Date{}, date.Date{}, err
	}
	from, to := today, today.Add(projectFlags.days-1)
	if projectFlags.from != "" {
		if from, err = parseDateArg("from", projectFlags.from); err != nil {
			return from, to, err
		}
		to = from.Add(projectFlags.days - 1)
	}
	if projectFlags.to != "" {
		if to, err = parseDateArg("to", projectFlags.to); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func instanceRow(inst schedule.Instance) []string {
	mark := ""
	switch {
	case inst.IsGenerated:
		mark = "✓"
	case inst.IsModified:
		mark = "*"
	}
	scheduled := ""
	if inst.ScheduledDate != inst.Date {
		scheduled = inst.ScheduledDate.String()
	}
	return []string{inst.Date.String(), scheduled, inst.Description, inst.Amount.String(), mark, inst.SeriesID}
}

var realizeFlags struct {
	amount, currency, desc, posted string
}

var realizeCmd = &cobra.Command{
	Use:   "realize SERIES_ID DATE",
	Short: "Write one occurrence to the ledger",
	Long: `Realize the occurrence originally scheduled on DATE. Each occurrence is
realized at most once; transfers write both legs together. Flags override the
values for this realization only.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseDateArg("date", args[1])
		if err != nil {
			return err
		}
		o, err := overridesFromFlags(realizeFlags.amount, realizeFlags.currency, realizeFlags.desc, realizeFlags.posted)
		if err != nil {
			return err
		}
		rz, err := app.svc.Realizer.Realize(cmd.Context(), service.RealizeRequest{
			SeriesID:    args[0],
			Date:        on,
			Amount:      o.Amount,
			Description: o.Description,
			PostedDate:  o.Date,
		})
		var already *service.AlreadyRealizedError
		if errors.As(err, &already) {
			return fmt.Errorf("%s on %s is already realized as transaction %s", args[0], on, already.TransactionID)
		}
		if err != nil {
			return err
		}
		printRealizations(cmd, []service.Realization{rz})
		return nil
	},
}

func printRealizations(cmd *cobra.Command, list []service.Realization) {
	var rows [][]string
	for _, rz := range list {
		for _, t := range rz.Transactions {
			rows = append(rows, []string{t.ID, t.AccountID, t.Date.String(), t.Description, t.Amount.String(), string(t.Leg)})
		}
	}
	printTable(cmd.OutOrStdout(), []string{"Transaction", "Account", "Date", "Description", "Amount", "Leg"}, rows)
}

var autoRealizeFlags struct {
	account  string
	lookback int
	force    bool
}

var autoRealizeCmd = &cobra.Command{
	Use:   "auto-realize",
	Short: "Realize past-due occurrences within the look-back window",
	Long: `Realize every unrealized, non-skipped occurrence scheduled in the look-back
window before today. Does nothing unless auto_realize_past_due_items is on,
or --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		today, err := app.today()
		if err != nil {
			return err
		}
		settings, err := app.svc.Settings.Load(ctx)
		if err != nil {
			return err
		}
		if autoRealizeFlags.force {
			settings.AutoRealizePastDueItems = true
		}
		if cmd.Flags().Changed("lookback") {
			settings.PastDueLookbackDays = autoRealizeFlags.lookback
		}
		accountID := ""
		if autoRealizeFlags.account != "" {
			if accountID, err = app.accountID(ctx, autoRealizeFlags.account, ""); err != nil {
				return err
			}
		}
		res, err := app.svc.AutoRealizer.RunIfEnabled(ctx, today, settings, accountID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.Enabled {
			fmt.Fprintln(out, "auto-realize is disabled (see `recurring settings --auto` or --force)")
			return nil
		}
		printRealizations(cmd, res.Realized)
		fmt.Fprintf(out, "window %s: realized %d, already realized %d, skipped %d, awaiting review %d\n",
			res.Window, len(res.Realized), res.AlreadyRealized, res.Skipped, res.AwaitingReview)
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", e)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d occurrences failed", len(res.Errors))
		}
		return nil
	},
}

var settingsFlags struct {
	auto     bool
	lookback int
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the stored catch-up settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := app.svc.Settings.Load(ctx)
		if err != nil {
			return err
		}
		changed := false
		if cmd.Flags().Changed("auto") {
			s.AutoRealizePastDueItems = settingsFlags.auto
			changed = true
		}
		if cmd.Flags().Changed("lookback") {
			if settingsFlags.lookback < 0 {
				return fmt.Errorf("lookback must not be negative")
			}
			s.PastDueLookbackDays = settingsFlags.lookback
			changed = true
		}
		if changed {
			if err := app.svc.Settings.Save(ctx, s); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "auto_realize_past_due_items = %t\npast_due_lookback_days = %d\n",
			s.AutoRealizePastDueItems, s.PastDueLookbackDays)
		return nil
	},
}

func init() {
	pf := projectCmd.Flags()
	pf.StringVar(&projectFlags.from, "from", "", "first date (default today)")
	pf.StringVar(&projectFlags.to, "to", "", "last date (default from + days - 1)")
	pf.IntVar(&projectFlags.days, "days", 30, "range length when --to is not given")
	pf.StringVar(&projectFlags.account, "account", "", "only series touching this account")

	rf := realizeCmd.Flags()
	rf.StringVar(&realizeFlags.amount, "amount", "", "override amount")
	rf.StringVar(&realizeFlags.currency, "currency", "", "currency of --amount (default ui.currency)")
	rf.StringVar(&realizeFlags.desc, "desc", "", "override description")
	rf.StringVar(&realizeFlags.posted, "posted", "", "ledger date, when it differs from the scheduled one")

	af := autoRealizeCmd.Flags()
	af.StringVar(&autoRealizeFlags.account, "account", "", "only series touching this account")
	af.IntVar(&autoRealizeFlags.lookback, "lookback", 0, "override the stored look-back days")
	af.BoolVar(&autoRealizeFlags.force, "force", false, "run even when auto-realize is disabled")

	sf := settingsCmd.Flags()
	sf.BoolVar(&settingsFlags.auto, "auto", false, "enable auto-realization of past-due items")
	sf.IntVar(&settingsFlags.lookback, "lookback", 30, "look-back window in days")
}

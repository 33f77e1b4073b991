package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/service"
)

var skipCmd = &cobra.Command{
	Use:   "skip SERIES_ID DATE",
	Short: "Skip one scheduled occurrence",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseDateArg("date", args[1])
		if err != nil {
			return err
		}
		if err := app.svc.Exceptions.Skip(cmd.Context(), args[0], on); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %s\n", on)
		return nil
	},
}

var modifyFlags struct {
	amount, currency, desc, moveTo string
}

var modifyCmd = &cobra.Command{
	Use:   "modify SERIES_ID DATE",
	Short: "Change the amount, description or date of one occurrence",
	Long: `Change one occurrence. DATE is always the originally scheduled date, even
after the occurrence has been moved with --date.

Example:
  recurring modify $SERIES_ID 2025-03-31 --amount -1600 --date 2025-03-28`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseDateArg("date", args[1])
		if err != nil {
			return err
		}
		o, err := overridesFromFlags(modifyFlags.amount, modifyFlags.currency, modifyFlags.desc, modifyFlags.moveTo)
		if err != nil {
			return err
		}
		if err := app.svc.Exceptions.Modify(cmd.Context(), args[0], on, o); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "modified %s\n", on)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear SERIES_ID DATE",
	Short: "Remove a skip or modification so the occurrence follows its series again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseDateArg("date", args[1])
		if err != nil {
			return err
		}
		if err := app.svc.Exceptions.Clear(cmd.Context(), args[0], on); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", on)
		return nil
	},
}

var skipNextCmd = &cobra.Command{
	Use:   "skip-next SERIES_ID",
	Short: "Skip the next upcoming occurrence of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := app.svc.Exceptions.SkipNext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %s\n", on)
		return nil
	},
}

func init() {
	f := modifyCmd.Flags()
	f.StringVar(&modifyFlags.amount, "amount", "", "replacement amount")
	f.StringVar(&modifyFlags.currency, "currency", "", "currency of --amount (default ui.currency)")
	f.StringVar(&modifyFlags.desc, "desc", "", "replacement description")
	f.StringVar(&modifyFlags.moveTo, "date", "", "move the occurrence to this date")
}

// overridesFromFlags builds per-occurrence overrides; empty flags are left
// unset.
func overridesFromFlags(amount, currency, desc, moveTo string) (service.Overrides, error) {
	var o service.Overrides
	if amount != "" {
		if currency == "" {
			currency = app.cfg.UI.Currency
		}
		a, err := money.Parse(amount, currency)
		if err != nil {
			return o, fmt.Errorf("amount: %w", err)
		}
		o.Amount = &a
	}
	if desc != "" {
		o.Description = &desc
	}
	if moveTo != "" {
		d, err := date.Parse(moveTo)
		if err != nil {
			return o, fmt.Errorf("date: %w", err)
		}
		o.Date = &d
	}
	return o, nil
}

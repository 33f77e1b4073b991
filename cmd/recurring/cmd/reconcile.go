package cmd

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/service"
	"github.com/jask/recurring/internal/tui"
)

var importFlags struct {
	account, currency, format string
	analyze                   bool
	profile                   string
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a bank statement CSV",
	Long: `Import bank statement rows as unreconciled transactions. Rows already
imported are skipped.

Formats:
  csv  date (YYYY-MM-DD), description, amount[, external_id], optional header
  anz  date (D/MM/YYYY), amount, description, no header`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		currency := importFlags.currency
		if currency == "" {
			currency = app.cfg.UI.Currency
		}
		var res service.IngestResult
		switch strings.ToLower(importFlags.format) {
		case "", "csv":
			res, err = app.svc.Ingest.ImportCSV(ctx, f, importFlags.account, currency)
		case "anz":
			res, err = app.svc.Ingest.ImportANZSimple(ctx, f, importFlags.account, currency)
		default:
			return fmt.Errorf("unknown format %q", importFlags.format)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imported %d, skipped %d, errors %d\n", res.Imported, res.Skipped, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", e)
		}
		if !importFlags.analyze || len(res.IDs) == 0 {
			return nil
		}
		return analyze(cmd, res.IDs, importFlags.profile)
	},
}

var reconcileProfile string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [IMPORTED_TX_ID...]",
	Short: "Match imported transactions to expected occurrences",
	Long: `Score imported transactions against the occurrences they could stand for.
High confidence matches are adopted into the ledger, medium ones wait for
review (recurring review), the rest stay unmatched. Without arguments every
unreconciled import is analyzed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyze(cmd, args, reconcileProfile)
	},
}

func analyze(cmd *cobra.Command, ids []string, profileName string) error {
	profile, err := app.profile(profileName)
	if err != nil {
		return err
	}
	res, err := app.svc.Reconciler.AnalyzeBatch(cmd.Context(), ids, profile)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(res.Results))
	for _, r := range res.Results {
		series, on := "", ""
		if r.Match != nil {
			series, on = r.Match.SeriesID, r.Match.InstanceDate.String()
		}
		rows = append(rows, []string{r.ImportedTxID, string(r.Status), fmt.Sprintf("%.2f", r.Score), series, on})
	}
	printTable(cmd.OutOrStdout(), []string{"Import", "Status", "Score", "Series", "Occurrence"}, rows)
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", e)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d imports failed", len(res.Errors))
	}
	return nil
}

var matchesStatus string

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List reconciliation matches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.svc.Reconciler.ListMatches(cmd.Context(), matching.Status(matchesStatus))
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, m := range list {
			rows = append(rows, []string{
				m.ID, m.ImportedTxID, m.SeriesID, m.InstanceDate.String(), string(m.Status),
				fmt.Sprintf("%.2f", m.Score), fmt.Sprintf("%+dd", m.DateOffsetDays), m.AmountVariance.String(), string(m.Source),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Import", "Series", "Occurrence", "Status", "Score", "Offset", "Variance", "Source"}, rows)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link IMPORTED_TX_ID SERIES_ID DATE",
	Short: "Link an imported transaction to an occurrence by hand",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseDateArg("date", args[2])
		if err != nil {
			return err
		}
		m, err := app.svc.Reconciler.CreateManualLink(cmd.Context(), args[0], args[1], on)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "linked as match %s (offset %dd, variance %s)\n", m.ID, m.DateOffsetDays, m.AmountVariance)
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink MATCH_ID",
	Short: "Undo a match and release the imported transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.svc.Reconciler.Unlink(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s\n", args[0])
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn SERIES_ID TEXT",
	Short: "Remember bank statement text for a series",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		added, err := app.svc.Reconciler.LearnPattern(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintln(cmd.OutOrStdout(), "pattern already known")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "learned %q\n", args[1])
		return nil
	},
}

var reviewFlags struct {
	profile, account string
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Open the interactive review screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := app.profile(reviewFlags.profile)
		if err != nil {
			return err
		}
		today, err := app.today()
		if err != nil {
			return err
		}
		m := tui.New(cmd.Context(), app.svc, tui.Options{
			Profile:  profile,
			Location: app.loc,
			Today:    today,
			Currency: app.cfg.UI.Currency,
			Account:  reviewFlags.account,
		})
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.account, "account", "Checking", "account name, created on first use")
	f.StringVar(&importFlags.currency, "currency", "", "statement currency (default ui.currency)")
	f.StringVar(&importFlags.format, "format", "csv", "csv|anz")
	f.BoolVar(&importFlags.analyze, "reconcile", false, "reconcile the imported rows right away")
	f.StringVar(&importFlags.profile, "profile", "", "tolerance profile (default matching.profile)")

	reconcileCmd.Flags().StringVar(&reconcileProfile, "profile", "", "strict|moderate|loose (default matching.profile)")
	matchesCmd.Flags().StringVar(&matchesStatus, "status", "", "matched|pending|skipped (default all)")

	reviewCmd.Flags().StringVar(&reviewFlags.profile, "profile", "", "tolerance profile used by scans")
	reviewCmd.Flags().StringVar(&reviewFlags.account, "account", "Checking", "account for imports")
}

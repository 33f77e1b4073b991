// Package cmd provides the recurring CLI commands.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/config"
	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/service"
)

var (
	cfgFile   string
	debug     bool
	todayFlag string
)

// env is what every command runs against once the root pre-run is done.
type env struct {
	cfg config.Config
	db  *sql.DB
	svc *service.Services
	loc *time.Location
}

var app env

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Project, realize and reconcile recurring transactions",
	Long: `recurring keeps a ledger of recurring items (rent, salary, subscriptions,
transfers) in sync with what the bank actually posted.

It supports:
- Projecting upcoming occurrences with skips and one-off changes
- Realizing occurrences into the ledger, once each
- Catching up past-due occurrences automatically
- Importing bank statements and matching them to expected occurrences

Example:
  recurring series add --desc Rent --amount -1500 --freq monthly --day 1 --start 2025-01-01
  recurring project --from 2025-03-01 --to 2025-03-31
  recurring import statement.csv && recurring reconcile`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := os.Setenv("RECURRING_CONFIG", cfgFile); err != nil {
				return err
			}
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		level := cfg.Log.Level
		if debug {
			level = "debug"
		}
		logger.Init(level, cfg.Log.Format)
		return app.open(cmd.Context(), cfg)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if app.db != nil {
		_ = app.db.Close()
		app.db = nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/recurring/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "treat this date (YYYY-MM-DD) as today")

	rootCmd.AddCommand(seriesCmd)
	rootCmd.AddCommand(skipCmd, modifyCmd, clearCmd, skipNextCmd)
	rootCmd.AddCommand(projectCmd, realizeCmd, autoRealizeCmd, settingsCmd)
	rootCmd.AddCommand(importCmd, reconcileCmd, matchesCmd, linkCmd, unlinkCmd, learnCmd, reviewCmd)
	rootCmd.AddCommand(serveCmd, seedCmd, resetCmd, versionCmd)
}

func (e *env) open(ctx context.Context, cfg config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defaults := repository.Settings{
		AutoRealizePastDueItems: cfg.Settings.AutoRealizePastDueItems,
		PastDueLookbackDays:     cfg.Settings.PastDueLookbackDays,
	}
	if err := database.SeedDefaults(ctx, db, defaults); err != nil {
		_ = db.Close()
		return fmt.Errorf("seed defaults: %w", err)
	}
	e.cfg = cfg
	e.db = db
	e.svc = service.New(db, cfg.Thresholds())
	e.loc = cfg.Location()
	return nil
}

// today honours --today, falling back to the configured timezone's date.
func (e *env) today() (date.Date, error) {
	if todayFlag != "" {
		return date.Parse(todayFlag)
	}
	return date.Today(e.loc), nil
}

func (e *env) profile(name string) (matching.Profile, error) {
	return e.cfg.Profile(name)
}

// accountID resolves an account by name, creating it in the given currency
// when it does not exist yet.
func (e *env) accountID(ctx context.Context, name, currency string) (string, error) {
	if currency == "" {
		currency = e.cfg.UI.Currency
	}
	acct, err := e.svc.Series.EnsureAccount(ctx, name, currency)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

func parseDateArg(name, raw string) (date.Date, error) {
	d, err := date.Parse(raw)
	if err != nil {
		return date.Date{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

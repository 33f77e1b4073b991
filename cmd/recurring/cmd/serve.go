package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/api"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/testdata"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := app.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := api.NewServer(app.svc, api.Options{
			Profile:  app.cfg.Profile,
			Location: app.loc,
		})
		server := &http.Server{
			Addr:         addr,
			Handler:      srv.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		errCh := make(chan error, 1)
		go func() {
			logger.L.Info("server starting", "address", addr)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		logger.L.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create sample series and a synthetic bank statement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		today, err := app.today()
		if err != nil {
			return err
		}
		res, err := testdata.Seed(cmd.Context(), app.svc, today, app.cfg.UI.Currency, rand.New(rand.NewSource(time.Now().UnixNano())))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d series, imported %d statement rows\nrun `recurring reconcile` to match them\n",
			len(res.Series), res.Imported.Imported)
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all series, transactions and matches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to reset without --yes")
		}
		cleared, err := app.svc.Maintenance.Reset(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(cleared))
		for _, c := range cleared {
			rows = append(rows, []string{c.Table, strconv.FormatInt(c.Rows, 10)})
		}
		printTable(cmd.OutOrStdout(), []string{"Table", "Rows removed"}, rows)
		fmt.Fprintln(cmd.OutOrStdout(), "database reset")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deleting everything")
}

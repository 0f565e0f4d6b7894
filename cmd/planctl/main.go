package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
)

const defaultRecoverLimit = 50

// opener builds the backing service for one command invocation.
type opener func(ctx context.Context, logLevel string) (planOps, func() error, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(func(ctx context.Context, logLevel string) (planOps, func() error, error) {
		svc, err := openService(ctx, logLevel)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	}, os.Stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Operate on Group Escape Houses plan purchases",
		Long:          "planctl recovers plan purchases missed by the Stripe webhook and reports on owner entitlements.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override GEH_LOG_LEVEL for this run")

	withOps := func(fn func(cmd *cobra.Command, ops planOps, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ops, closeFn, err := open(cmd.Context(), logLevel)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			if closeFn != nil {
				defer closeFn()
			}
			return fn(cmd, ops, args)
		}
	}

	root.AddCommand(
		newRecoverCmd(withOps),
		newRecoverRecentCmd(withOps),
		newUnusedCmd(withOps),
		newReportCmd(withOps),
	)
	return root
}

type opsRunner func(fn func(cmd *cobra.Command, ops planOps, args []string) error) func(*cobra.Command, []string) error

func newRecoverCmd(withOps opsRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <checkout-session-id>...",
		Short: "Reconcile specific Stripe checkout sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: withOps(func(cmd *cobra.Command, ops planOps, args []string) error {
			report := ops.ReconcileSessions(cmd.Context(), args)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return reportErr(report)
		}),
	}
}

func newRecoverRecentCmd(withOps opsRunner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recover-recent",
		Short: "Reconcile the most recent Stripe checkout sessions",
		Args:  cobra.NoArgs,
		RunE: withOps(func(cmd *cobra.Command, ops planOps, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			report, err := ops.SweepRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return reportErr(report)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", defaultRecoverLimit, "number of recent sessions to scan")
	return cmd
}

func newUnusedCmd(withOps opsRunner) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "unused",
		Short: "List an owner's unused, unexpired plans",
		Args:  cobra.NoArgs,
		RunE: withOps(func(cmd *cobra.Command, ops planOps, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			rows, err := ops.ListUnusedEntitlements(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"user_id":         userID,
				"has_unused_plan": len(rows) > 0,
				"plans":           planpurchases.ToDTOs(rows, ops.Now()),
			})
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user id")
	return cmd
}

func newReportCmd(withOps opsRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print used, available and expired plan counts",
		Args:  cobra.NoArgs,
		RunE: withOps(func(cmd *cobra.Command, ops planOps, args []string) error {
			summary, err := ops.Summarize(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		}),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reportErr(report *reconcile.BatchReport) error {
	if report == nil || report.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d sessions failed", report.Failed, report.Scanned)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veriflow/veriflow/internal/logging"
	"github.com/veriflow/veriflow/internal/polling"
)

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll [transaction-id]",
		Short: "Wait for an approval request to resolve",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoll,
	}
	cmd.Flags().Duration("interval", polling.DefaultInterval, "Poll interval")
	cmd.Flags().Duration("ceiling", polling.DefaultCeiling, "Give up after this long")
	cmd.Flags().String("log-level", "error", "Log level for failed polls")
	return cmd
}

func runPoll(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	interval, _ := cmd.Flags().GetDuration("interval")
	ceiling, _ := cmd.Flags().GetDuration("ceiling")
	level, _ := cmd.Flags().GetString("log-level")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := polling.New(polling.NewHTTPChecker(server, timeout), interval, ceiling, logging.NewWriter(cmd.ErrOrStderr(), level))
	res := poller.Run(ctx, args[0])

	fmt.Fprintln(cmd.OutOrStdout(), res.Outcome.Message())
	fmt.Fprintf(cmd.OutOrStdout(), "outcome=%s attempts=%d failures=%d elapsed=%s\n",
		res.Outcome, res.Attempts, res.Failures, res.Elapsed.Round(time.Millisecond))
	if !res.Outcome.Success() {
		return fmt.Errorf("approval %s", res.Outcome)
	}
	return nil
}

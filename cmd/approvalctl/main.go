package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Poll and approve out-of-band purchase approvals",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", envOr("VERIFLOW_URL", "http://localhost:8080"), "VeriFlow base URL")
	root.PersistentFlags().Duration("timeout", 0, "Per-request timeout (default 5s)")

	root.AddCommand(pollCmd())
	root.AddCommand(approveCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

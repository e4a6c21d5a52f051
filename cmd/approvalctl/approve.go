package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/veriflow/veriflow/internal/middleware"
)

func approveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [transaction-id]",
		Short: "Approve a pending request as the out-of-band channel",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprove,
	}
	cmd.Flags().String("channel-token", envOr("APPROVAL_CHANNEL_TOKEN", ""), "Approval channel token")
	return cmd
}

type approveResponse struct {
	Approved        bool      `json:"approved"`
	AlreadyApproved bool      `json:"alreadyApproved"`
	ApprovedAt      time.Time `json:"approvedAt"`
}

func runApprove(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	token, _ := cmd.Flags().GetString("channel-token")
	if token == "" {
		return errors.New("--channel-token or APPROVAL_CHANNEL_TOKEN is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	agent := fiber.Post(strings.TrimRight(server, "/")+"/api/v1/approve-transaction").
		Timeout(timeout).
		Set(middleware.ChannelTokenHeader, token).
		JSON(fiber.Map{"transactionId": args[0]})

	var body approveResponse
	status, raw, errs := agent.Struct(&body)
	if status != 0 && status != fiber.StatusOK {
		return fmt.Errorf("approve failed: status %d: %s", status, strings.TrimSpace(string(raw)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("approve failed: %w", errors.Join(errs...))
	}

	if body.AlreadyApproved {
		fmt.Fprintf(cmd.OutOrStdout(), "already approved at %s\n", body.ApprovedAt.Format(time.RFC3339))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "approved at %s\n", body.ApprovedAt.Format(time.RFC3339))
	return nil
}

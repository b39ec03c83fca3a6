package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/craftmint/service/temporal"
	"github.com/urfave/cli/v2"
)

// sendEmailCommand starts the confirmation email workflow by hand, e.g. to
// resend after SMTP credentials were fixed. Workflow IDs are keyed on the
// transaction signature, so a confirmation that is still running is not
// started twice.
func sendEmailCommand() *cli.Command {
	return &cli.Command{
		Name:      "send-email",
		Usage:     "Start the purchase confirmation email workflow",
		ArgsUsage: "<transaction_signature>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "Recipient email address", Required: true},
			&cli.StringFlag{Name: "artifact-id", Usage: "Artifact ID", Required: true},
			&cli.StringFlag{Name: "image-uri", Usage: "Artifact image URI", Required: true},
			&cli.StringFlag{Name: "artifact-uri", Usage: "Artifact metadata URI"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			tc, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("temporal-task-queue"),
				logger,
			)
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer tc.Close()

			input := temporal.PurchaseEmailInput{
				TransactionReference: c.Args().First(),
				To:                   c.String("to"),
				ArtifactID:           c.String("artifact-id"),
				ImageURI:             c.String("image-uri"),
			}
			if uri := c.String("artifact-uri"); uri != "" {
				input.ArtifactURI = &uri
			}

			if err := tc.StartPurchaseEmail(c.Context, input); err != nil {
				return fmt.Errorf("failed to start workflow: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Confirmation email workflow started for %s\n", input.TransactionReference)
			fmt.Fprintf(c.App.Writer, "  Task queue: %s\n", tc.TaskQueue())
			return nil
		},
	}
}

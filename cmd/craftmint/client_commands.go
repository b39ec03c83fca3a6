package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/craftmint/client"
	"github.com/itchyny/gojq"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the craftmint service",
		Subcommands: []*cli.Command{
			verifyPaymentCommand(),
			nftsCommand(),
			paymentRequestCommand(),
			awaitCommand(),
		},
	}
}

// newClient builds an API client for --server-url. A zero timeout keeps the
// client's default.
func newClient(c *cli.Context, timeout time.Duration) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	var httpClient *http.Client
	if timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}
	return client.NewClient(c.String("server-url"), httpClient, logger)
}

func verifyPaymentCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify-payment",
		Usage:     "Redeem a confirmed payment for an artifact",
		ArgsUsage: "<transaction_signature>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "payer",
				Usage:    "Payer account (userPublicKey)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Amount paid, in whole tokens",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Token mint (defaults to the server's configured mint)",
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "Address to send the purchase confirmation to",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			a, err := newClient(c, 0).VerifyPayment(c.Context, client.VerifyPaymentRequest{
				TransactionSignature:  c.Args().First(),
				UserPublicKey:         c.String("payer"),
				Amount:                amount,
				CraftTokenMintAddress: c.String("mint"),
				Email:                 c.String("email"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, a)
			}
			fmt.Fprintln(c.App.Writer, "✓ Payment verified and artifact issued")
			printClientArtifact(c.App.Writer, *a)
			return nil
		},
	}
}

func nftsCommand() *cli.Command {
	return &cli.Command{
		Name:      "nfts",
		Usage:     "List the artifacts owned by an account",
		ArgsUsage: "<owner_account>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq expression every listed artifact must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: owner account")
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			artifacts, err := newClient(c, 30*time.Second).ListArtifacts(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			artifacts, err = filterArtifacts(artifacts, filters)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, artifacts)
			}
			for i, a := range artifacts {
				if i > 0 {
					fmt.Fprintln(c.App.Writer)
				}
				printClientArtifact(c.App.Writer, a)
			}
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d artifacts\n", len(artifacts))
			return nil
		},
	}
}

func paymentRequestCommand() *cli.Command {
	return &cli.Command{
		Name:  "payment-request",
		Usage: "Create a Solana Pay request for an amount",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Amount to request, in whole tokens",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "qr-out",
				Usage: "Write the QR code PNG to this file",
			},
		},
		Action: func(c *cli.Context) error {
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			pr, err := newClient(c, 30*time.Second).PaymentRequest(c.Context, amount)
			if err != nil {
				return err
			}

			if path := c.String("qr-out"); path != "" && pr.QRCodeData != "" {
				png, err := base64.StdEncoding.DecodeString(pr.QRCodeData)
				if err != nil {
					return fmt.Errorf("failed to decode QR code: %w", err)
				}
				if err := os.WriteFile(path, png, 0o644); err != nil {
					return fmt.Errorf("failed to write QR code: %w", err)
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, pr)
			}
			w := c.App.Writer
			fmt.Fprintf(w, "Pay to:     %s (%s)\n", pr.PayToAddress, pr.Network)
			fmt.Fprintf(w, "Amount:     %s (%d base units)\n", pr.Amount, pr.BaseUnits)
			fmt.Fprintf(w, "Token:      %s\n", pr.TokenMint)
			fmt.Fprintf(w, "Reference:  %s\n", pr.Reference)
			fmt.Fprintf(w, "URL:        %s\n", pr.PaymentURL)
			return nil
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a purchase for an owner is streamed",
		ArgsUsage: "[owner_account]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Only accept the purchase for this transaction signature",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait",
			},
		},
		Action: func(c *cli.Context) error {
			owner := c.Args().First()
			signature := c.String("signature")

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ev, err := newClient(c, 0).AwaitPurchase(ctx, owner, func(e *client.PurchaseEvent) bool {
				return signature == "" || e.TransactionReference == signature
			})
			if err != nil {
				return fmt.Errorf("failed to await purchase: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, ev)
			}
			w := c.App.Writer
			fmt.Fprintln(w, "✓ Purchase received")
			fmt.Fprintf(w, "Signature:  %s\n", ev.TransactionReference)
			fmt.Fprintf(w, "Owner:      %s\n", ev.OwnerAccount)
			fmt.Fprintf(w, "Artifact:   %s\n", ev.ArtifactID)
			fmt.Fprintf(w, "Image:      %s\n", ev.ImageURI)
			return nil
		},
	}
}

func printClientArtifact(w io.Writer, a client.Artifact) {
	fmt.Fprintf(w, "Artifact:   %s\n", a.ArtifactID)
	fmt.Fprintf(w, "Owner:      %s\n", a.Owner)
	fmt.Fprintf(w, "Image:      %s\n", a.ImageURI)
	fmt.Fprintf(w, "Metadata:   %s\n", formatOptional(a.ArtifactURI))
	if !a.IssuedAt.IsZero() {
		fmt.Fprintf(w, "Issued:     %s\n", a.IssuedAt.Format(time.RFC3339))
	}
}

// compileJQFilters parses and compiles each jq expression.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// filterArtifacts keeps the artifacts for which every filter yields a truthy
// first result. Filters see the artifact's JSON form.
func filterArtifacts(artifacts []client.Artifact, filters []*gojq.Code) ([]client.Artifact, error) {
	if len(filters) == 0 {
		return artifacts, nil
	}

	out := make([]client.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		// gojq only understands plain JSON values
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}

		keep := true
		for _, code := range filters {
			if !jqMatches(code, v) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, a)
		}
	}
	return out, nil
}

func jqMatches(code *gojq.Code, v interface{}) bool {
	iter := code.Run(v)
	result, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := result.(error); isErr {
		return false
	}
	return isTruthy(result)
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

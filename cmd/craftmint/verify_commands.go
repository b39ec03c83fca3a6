package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/craftmint/service/solana"
	"github.com/brojonat/craftmint/service/verify"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// verifyCommand checks a payment against the ledger without issuing anything.
func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check a transaction against the ledger without redeeming it",
		ArgsUsage: "<transaction_signature>",
		Description: `Fetch a transaction from a Solana RPC node and decide whether it is a token
transfer from the payer to the recipient, exactly as the server would.
Nothing is recorded.

Example:
  craftmint verify 5VERv8NM... --payer 7EcD... --recipient 9xQe... --mint EPjF... --amount 5`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.devnet.solana.com",
			},
			&cli.StringFlag{Name: "payer", Usage: "Payer account", Required: true},
			&cli.StringFlag{Name: "recipient", Usage: "Treasury account", EnvVars: []string{"ADMIN_WALLET_PUBLIC_KEY"}, Required: true},
			&cli.StringFlag{Name: "mint", Usage: "Token mint", EnvVars: []string{"CRAFT_TOKEN_MINT_ADDRESS"}, Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Claimed amount in whole tokens", Value: "1"},
			&cli.BoolFlag{Name: "enforce-amount", Usage: "Require the transfer to carry exactly --amount"},
			&cli.IntFlag{Name: "decimals", Usage: "Token decimals for --enforce-amount", EnvVars: []string{"CRAFT_TOKEN_DECIMALS"}, Value: 6},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log RPC activity to stderr"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			var logOut io.Writer = io.Discard
			if c.Bool("verbose") {
				logOut = os.Stderr
			}
			logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

			rpcURL, err := solana.SelectRandomEndpoint(solana.SplitEndpoints(c.String("rpc-url")))
			if err != nil {
				return err
			}
			ledger := solana.NewClient(solana.NewRPCClient(rpcURL), "cli", nil, logger)
			verifier := verify.New(ledger, nil, logger)
			if c.Bool("enforce-amount") {
				verifier = verifier.WithAmountPolicy(verify.AmountPolicy{Decimals: int32(c.Int("decimals"))})
			}

			res := verifier.Verify(c.Context, verify.TransferClaim{
				TransactionReference: c.Args().First(),
				PayerAccount:         c.String("payer"),
				ExpectedAmount:       amount,
				TokenMintAccount:     c.String("mint"),
			}, c.String("recipient"))

			return printVerifyResult(c.App.Writer, res, c.Bool("json"))
		},
	}
}

// printVerifyResult reports res and returns an error when it is invalid so
// the exit status reflects the outcome.
func printVerifyResult(w io.Writer, res verify.Result, jsonOutput bool) error {
	if jsonOutput {
		out := map[string]interface{}{
			"valid":  res.Valid,
			"code":   res.Code,
			"reason": res.Reason,
		}
		if res.Err != nil {
			out["error"] = res.Err.Error()
		}
		if err := outputJSON(w, out); err != nil {
			return err
		}
	} else if res.Valid {
		fmt.Fprintln(w, "✓ Transfer verified")
	} else {
		fmt.Fprintf(w, "✗ Rejected (%s): %s\n", res.Code, res.Reason)
		if res.Err != nil {
			fmt.Fprintf(w, "  cause: %v\n", res.Err)
		}
	}

	if !res.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

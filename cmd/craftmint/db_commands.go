package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/craftmint/service/db"
	"github.com/brojonat/craftmint/service/db/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listArtifactsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-artifacts",
		Usage:     "List the artifacts owned by an account",
		Aliases:   []string{"ls"},
		ArgsUsage: "<owner_account>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: owner account")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			artifacts, err := store.ListArtifactsByOwner(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to list artifacts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, artifacts)
			}
			printArtifactTable(c.App.Writer, artifacts)
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d artifacts\n", len(artifacts))
			return nil
		},
	}
}

func getPurchaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-purchase",
		Usage:     "Show the purchase recorded for a transaction signature",
		Aliases:   []string{"get"},
		ArgsUsage: "<transaction_signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			p, err := store.GetPurchase(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get purchase: %w", err)
			}
			a, err := store.GetArtifact(c.Context, p.ArtifactID)
			if err != nil {
				return fmt.Errorf("failed to get artifact %s: %w", p.ArtifactID, err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"purchase": p,
					"artifact": a,
				})
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Signature:    %s\n", p.TransactionReference)
			fmt.Fprintf(w, "Payer:        %s\n", p.PayerAccount)
			fmt.Fprintf(w, "Purchased:    %s\n", p.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Artifact:     %s\n", a.ArtifactID)
			fmt.Fprintf(w, "Owner:        %s\n", a.OwnerAccount)
			fmt.Fprintf(w, "Image:        %s\n", a.ImageURI)
			fmt.Fprintf(w, "Metadata:     %s\n", formatOptional(a.ArtifactURI))
			fmt.Fprintf(w, "Signed:       %s\n", formatOptional(a.MetadataSignature))
			return nil
		},
	}
}

func listPurchasesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-purchases",
		Usage:     "List purchases made by a payer, newest first",
		ArgsUsage: "<payer_account>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of purchases to show",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: payer account")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			purchases, err := store.ListPurchasesByPayer(c.Context, c.Args().First(), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, purchases)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tARTIFACT\tPURCHASED")
			for _, p := range purchases {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.TransactionReference, p.ArtifactID, p.CreatedAt.Format(time.RFC3339))
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d purchases\n", len(purchases))
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(c.Context, pool)
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(c.App.Writer, "Schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(c.App.Writer, "Applied %s\n", name)
			}
			return nil
		},
	}
}

func printArtifactTable(out io.Writer, artifacts []*db.Artifact) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tIMAGE\tMETADATA\tISSUED")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.ArtifactID,
			a.ImageURI,
			formatOptional(a.ArtifactURI),
			a.CreatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()
}

func connect(c *cli.Context) (*pgxpool.Pool, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	pool, err := connect(c)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool), pool.Close, nil
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}

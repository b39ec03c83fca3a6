package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "craftmint",
		Usage: "Artifact purchase service CLI",
		Description: `A command-line tool for operating and debugging the craftmint service.

Use this CLI to inspect the ownership ledger, check payments against the ledger,
drive the HTTP API and watch purchase events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "db",
				Usage: "Ownership ledger inspection commands",
				Subcommands: []*cli.Command{
					listArtifactsCommand(),
					getPurchaseCommand(),
					listPurchasesCommand(),
					migrateCommand(),
				},
			},
			verifyCommand(),
			{
				Name:  "nats",
				Usage: "NATS purchase event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal notification workflow commands",
				Subcommands: []*cli.Command{
					sendEmailCommand(),
				},
			},
			clientCommands(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "craftmint server URL",
				EnvVars: []string{"CRAFTMINT_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue for notification workflows",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "craftmint-notifications",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	natspkg "github.com/brojonat/craftmint/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams purchase events straight from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to purchase events",
		ArgsUsage: "[owner_account]",
		Description: `Subscribe to purchase events published to NATS JetStream.

Events are published to the subject purchases.{owner_account}. Without an
owner account every purchase is shown.

Example:
  craftmint nats subscribe 7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "craftmint-cli",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if owner := c.Args().First(); owner != "" {
				subject = natspkg.SubjectPrefix + owner
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			}
			if c.Bool("all") {
				consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Subscribing to %s (Ctrl-C to exit)\n\n", subject)
			}

			var count atomic.Int64
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				var event natspkg.PurchaseEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
					msg.Ack()
					return
				}
				printPurchaseEvent(c.App.Writer, count.Add(1), &event, jsonOutput)
				msg.Ack()
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer cc.Stop()

			<-ctx.Done()
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d purchases\n", count.Load())
			}
			return nil
		},
	}
}

func printPurchaseEvent(w io.Writer, n int64, event *natspkg.PurchaseEvent, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(event)
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Purchase #%d\n", n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Signature:    %s\n", event.TransactionReference)
	fmt.Fprintf(w, "Owner:        %s\n", event.OwnerAccount)
	fmt.Fprintf(w, "Artifact:     %s\n", event.ArtifactID)
	fmt.Fprintf(w, "Image:        %s\n", event.ImageURI)
	fmt.Fprintf(w, "Metadata:     %s\n", formatOptional(event.ArtifactURI))
	fmt.Fprintf(w, "Purchased:    %s\n", event.PurchasedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "\n")
}

// inspectStreamCommand shows information about the purchases JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the PURCHASES JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Dedup Window: %s\n", info.Config.Duplicates)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}

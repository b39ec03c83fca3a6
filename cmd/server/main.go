package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/craftmint/service/artifact"
	"github.com/brojonat/craftmint/service/config"
	"github.com/brojonat/craftmint/service/db"
	"github.com/brojonat/craftmint/service/db/migrations"
	"github.com/brojonat/craftmint/service/email"
	"github.com/brojonat/craftmint/service/metrics"
	natspkg "github.com/brojonat/craftmint/service/nats"
	"github.com/brojonat/craftmint/service/notify"
	"github.com/brojonat/craftmint/service/purchase"
	"github.com/brojonat/craftmint/service/server"
	"github.com/brojonat/craftmint/service/solana"
	"github.com/brojonat/craftmint/service/temporal"
	"github.com/brojonat/craftmint/service/verify"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	applied, err := migrations.Apply(ctx, dbPool)
	if err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "migrations", applied)
	}

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	store := db.NewStore(dbPool).WithMetrics(metricsCollector)

	// Solana RPC client; SOLANA_RPC_URL may list several endpoints
	rpcURL, err := solana.SelectRandomEndpoint(solana.SplitEndpoints(cfg.SolanaRPCURL))
	if err != nil {
		logger.Error("invalid SOLANA_RPC_URL", "error", err)
		os.Exit(1)
	}
	solanaClient := solana.NewClient(solana.NewRPCClient(rpcURL), endpointLabel(rpcURL), metricsCollector, logger)
	logger.Info("initialized solana RPC client", "endpoint", endpointLabel(rpcURL))

	verifier := verify.New(solanaClient, metricsCollector, logger)
	if cfg.EnforceTransferAmount {
		verifier = verifier.WithAmountPolicy(verify.AmountPolicy{Decimals: int32(cfg.CraftTokenDecimals)})
		logger.Info("transfer amount enforcement enabled", "decimals", cfg.CraftTokenDecimals)
	}

	var signer artifact.Signer
	if cfg.Identity != nil {
		signer = cfg.Identity
		logger.Info("recipient identity loaded", "recipient", cfg.RecipientAccount())
	} else {
		logger.Warn("recipient identity unavailable, purchases will be refused", "error", cfg.IdentityErr)
	}
	generator := artifact.NewGenerator(
		artifact.NewShellUploader(cfg.IPFSAPIURL, cfg.IssueTimeout),
		signer,
		cfg.IPFSGatewayURL,
		metricsCollector,
		logger,
	)

	// Notification channels
	var channels []notify.Channel
	var ssePublisher *server.SSEPublisher
	if cfg.NATSEnabled {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		channels = append(channels, notify.NewEventChannel(natsPublisher))

		ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
	}

	if cfg.TemporalEnabled {
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		channels = append(channels, notify.NewWorkflowEmailChannel(temporalClient))
		logger.Info("purchase emails will be sent by temporal workflow",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	} else if cfg.SMTP.Configured() {
		channels = append(channels, notify.NewDirectEmailChannel(email.NewSMTPMailer(cfg.SMTP)))
		logger.Info("purchase emails will be sent directly", "smtp_host", cfg.SMTP.Host)
	} else {
		logger.Warn("email delivery disabled: temporal is off and SMTP is not configured")
	}

	dispatcher := notify.NewDispatcher(channels, notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
		Timeout:   cfg.NotifyTimeout,
	}, metricsCollector, logger)
	dispatcher.Start()

	svc := purchase.NewService(verifier, generator, store, dispatcher, purchase.Options{
		Recipient:     cfg.RecipientAccount(),
		AcceptedMint:  cfg.CraftTokenMintAddress,
		VerifyTimeout: cfg.VerifyTimeout,
		IssueTimeout:  cfg.IssueTimeout,
	}, metricsCollector, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, svc, store, ssePublisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"nats_enabled", cfg.NATSEnabled,
		"temporal_enabled", cfg.TemporalEnabled,
		"notification_channels", len(channels),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
		}
		// Drain queued notifications after no new purchases can arrive.
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Error("notifications still pending at shutdown", "error", err)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// endpointLabel extracts a short identifier from a Solana RPC URL for metrics
// labeling, so API keys in the URL never reach a label.
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "alchemy", "triton", "rpcpool", "mainnet", "devnet", "testnet", "localhost"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}
	return host
}

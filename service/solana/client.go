package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/craftmint/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// BackoffFunc returns how long to wait before the next attempt.
type BackoffFunc func(attempt int, rateLimited bool) time.Duration

// DefaultBackoff waits 1s, 2s, 4s between ordinary failures and twice as long
// after a 429.
func DefaultBackoff(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return time.Duration(2<<uint(attempt)) * time.Second
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Client fetches transactions from a Solana RPC node.
// It wraps the RPC client with retries, metrics and domain conversion.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet")
	maxAttempts int
	backoff     BackoffFunc
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		maxAttempts: 3,
		backoff:     DefaultBackoff,
	}
}

// WithBackoff replaces the retry schedule. Used by tests to avoid sleeping.
func (c *Client) WithBackoff(attempts int, backoff BackoffFunc) *Client {
	if attempts > 0 {
		c.maxAttempts = attempts
	}
	if backoff != nil {
		c.backoff = backoff
	}
	return c
}

// GetTransaction fetches a transaction by signature.
//
// A transaction the node does not know about is returned as a RawTransaction
// with Found false and a nil error. Errors are reserved for failures to get an
// answer at all: an invalid signature, a cancelled or expired context, or RPC
// failures that persisted through all retries.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*RawTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var result *rpc.GetTransactionResult
	for attempt := range c.maxAttempts {
		// Support versioned transactions
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		result, err = c.call(ctx, sig, opts)
		if err == nil {
			break
		}

		if errors.Is(err, rpc.ErrNotFound) {
			c.logger.InfoContext(ctx, "transaction not found on ledger",
				"signature", signature,
			)
			return rawFromResult(signature, nil), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("get transaction %s: %w", signature, ctxErr)
		}

		rateLimited := strings.Contains(err.Error(), "429")
		if rateLimited {
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", signature,
				"attempt", attempt+1,
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
		} else if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			// Some nodes reject the version option for legacy transactions.
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", signature,
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			result, err = c.call(ctx, sig, &rpc.GetTransactionOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			})
			if err == nil {
				break
			}
			if errors.Is(err, rpc.ErrNotFound) {
				return rawFromResult(signature, nil), nil
			}
		} else if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}

		if attempt == c.maxAttempts-1 {
			break
		}

		wait := c.backoff(attempt, rateLimited)
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", signature,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", wait.Seconds(),
		)
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", signature, err)
		}
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get transaction after retries",
			"signature", signature,
			"error", err,
		)
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}

	return rawFromResult(signature, result), nil
}

func (c *Client) call(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, opts)
	duration := time.Since(start).Seconds()

	// The real client reports a null result as ErrNotFound; fakes may
	// return nil, nil.
	if err == nil && result == nil {
		err = rpc.ErrNotFound
	}

	if c.metrics != nil {
		status := "success"
		switch {
		case errors.Is(err, rpc.ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
		}
		c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, duration)
	}

	return result, err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

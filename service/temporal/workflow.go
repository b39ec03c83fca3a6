package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ErrTypeEmailNotConfigured marks activity failures that retrying cannot fix.
const ErrTypeEmailNotConfigured = "EmailNotConfigured"

// PurchaseEmailInput contains the input for PurchaseEmailWorkflow.
type PurchaseEmailInput struct {
	TransactionReference string  `json:"transaction_reference"`
	To                   string  `json:"to"`
	ArtifactID           string  `json:"artifact_id"`
	ArtifactURI          *string `json:"artifact_uri,omitempty"`
	ImageURI             string  `json:"image_uri"`
}

// PurchaseEmailResult contains the result of PurchaseEmailWorkflow.
type PurchaseEmailResult struct {
	TransactionReference string    `json:"transaction_reference"`
	Status               string    `json:"status"` // "sent" or "skipped"
	SentAt               time.Time `json:"sent_at,omitempty"`
	Error                *string   `json:"error,omitempty"`
}

// PurchaseEmailWorkflow delivers the purchase confirmation. Mail server
// failures are retried with backoff; missing SMTP credentials are not.
func PurchaseEmailWorkflow(ctx workflow.Context, input PurchaseEmailInput) (*PurchaseEmailResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PurchaseEmailWorkflow started",
		"transaction_reference", input.TransactionReference,
		"artifact_id", input.ArtifactID,
	)

	result := &PurchaseEmailResult{TransactionReference: input.TransactionReference}

	if input.To == "" {
		result.Status = "skipped"
		return result, nil
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        5 * time.Minute,
			MaximumAttempts:        8,
			NonRetryableErrorTypes: []string{ErrTypeEmailNotConfigured},
		},
	})

	var sent *SendPurchaseEmailResult
	err := workflow.ExecuteActivity(ctx, "SendPurchaseEmail", input).Get(ctx, &sent)
	if err != nil {
		logger.Error("purchase email failed",
			"transaction_reference", input.TransactionReference,
			"error", err,
		)
		errMsg := err.Error()
		result.Error = &errMsg
		result.Status = "failed"
		return result, fmt.Errorf("send purchase email: %w", err)
	}

	result.Status = "sent"
	result.SentAt = sent.SentAt
	logger.Info("purchase email sent", "transaction_reference", input.TransactionReference)
	return result, nil
}

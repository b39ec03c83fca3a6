package temporal

import (
	"context"
)

// EmailStarter starts purchase email workflows.
// Starting the same transaction reference twice sends at most one email.
type EmailStarter interface {
	StartPurchaseEmail(ctx context.Context, input PurchaseEmailInput) error
}

// workflowID returns the Temporal workflow ID for a purchase email.
func workflowID(transactionReference string) string {
	return "purchase-email:" + transactionReference
}

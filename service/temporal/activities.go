package temporal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/craftmint/service/email"
	"github.com/brojonat/craftmint/service/metrics"
	"go.temporal.io/sdk/temporal"
)

// SendPurchaseEmailResult contains the result of the SendPurchaseEmail activity.
type SendPurchaseEmailResult struct {
	SentAt time.Time `json:"sent_at"`
}

// Activities holds the dependencies of the notification activities.
type Activities struct {
	mailer  email.Mailer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance. m may be nil.
func NewActivities(mailer email.Mailer, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		mailer:  mailer,
		metrics: m,
		logger:  logger,
	}
}

// SendPurchaseEmail renders and sends the purchase confirmation.
func (a *Activities) SendPurchaseEmail(ctx context.Context, input PurchaseEmailInput) (result *SendPurchaseEmailResult, err error) {
	start := time.Now()
	defer func() {
		if a.metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordEmailActivity(status, time.Since(start).Seconds())
	}()

	details := email.PurchaseDetails{
		ArtifactID: input.ArtifactID,
		ImageURI:   input.ImageURI,
	}
	if input.ArtifactURI != nil {
		details.ArtifactURI = *input.ArtifactURI
	}

	msg, err := email.PurchaseMessage(input.To, details)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("render purchase email", "RenderFailed", err)
	}

	if err := a.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, email.ErrNotConfigured) {
			a.logger.WarnContext(ctx, "purchase email not sent: smtp is not configured",
				"transaction_reference", input.TransactionReference,
			)
			return nil, temporal.NewNonRetryableApplicationError("email is not configured", ErrTypeEmailNotConfigured, err)
		}
		a.logger.WarnContext(ctx, "purchase email delivery failed",
			"transaction_reference", input.TransactionReference,
			"error", err,
		)
		return nil, err
	}

	a.logger.InfoContext(ctx, "purchase email sent",
		"transaction_reference", input.TransactionReference,
		"artifact_id", input.ArtifactID,
	)
	return &SendPurchaseEmailResult{SentAt: time.Now().UTC()}, nil
}

package notify

import (
	"context"
	"fmt"

	"github.com/brojonat/craftmint/service/email"
	"github.com/brojonat/craftmint/service/nats"
	"github.com/brojonat/craftmint/service/purchase"
	"github.com/brojonat/craftmint/service/temporal"
)

// EventChannel publishes a purchase event to NATS JetStream.
type EventChannel struct {
	publisher nats.Publisher
}

func NewEventChannel(p nats.Publisher) *EventChannel {
	return &EventChannel{publisher: p}
}

func (c *EventChannel) Name() string { return "nats" }

func (c *EventChannel) Deliver(ctx context.Context, n purchase.Notification) error {
	return c.publisher.PublishPurchase(ctx, nats.FromNotification(n))
}

// WorkflowEmailChannel hands the purchase email to a durable Temporal
// workflow, which owns retries.
type WorkflowEmailChannel struct {
	starter temporal.EmailStarter
}

func NewWorkflowEmailChannel(s temporal.EmailStarter) *WorkflowEmailChannel {
	return &WorkflowEmailChannel{starter: s}
}

func (c *WorkflowEmailChannel) Name() string { return "email_workflow" }

func (c *WorkflowEmailChannel) Deliver(ctx context.Context, n purchase.Notification) error {
	if n.Email == "" {
		return ErrSkipped
	}
	return c.starter.StartPurchaseEmail(ctx, EmailInput(n))
}

// DirectEmailChannel sends the purchase email inline. It is used when
// Temporal is disabled and makes a single attempt.
type DirectEmailChannel struct {
	mailer email.Mailer
}

func NewDirectEmailChannel(m email.Mailer) *DirectEmailChannel {
	return &DirectEmailChannel{mailer: m}
}

func (c *DirectEmailChannel) Name() string { return "email" }

func (c *DirectEmailChannel) Deliver(ctx context.Context, n purchase.Notification) error {
	if n.Email == "" {
		return ErrSkipped
	}
	in := EmailInput(n)
	details := email.PurchaseDetails{ArtifactID: in.ArtifactID, ImageURI: in.ImageURI}
	if in.ArtifactURI != nil {
		details.ArtifactURI = *in.ArtifactURI
	}
	msg, err := email.PurchaseMessage(in.To, details)
	if err != nil {
		return err
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send purchase email: %w", err)
	}
	return nil
}

// EmailInput converts a notification to the purchase email workflow input.
func EmailInput(n purchase.Notification) temporal.PurchaseEmailInput {
	return temporal.PurchaseEmailInput{
		TransactionReference: n.TransactionReference,
		To:                   n.Email,
		ArtifactID:           n.Artifact.ID,
		ArtifactURI:          n.Artifact.URI,
		ImageURI:             n.Artifact.ImageURI,
	}
}
